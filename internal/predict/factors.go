package predict

import (
	"strconv"
	"strings"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// Factor names used in the per-horse factor map.
const (
	FactorSpeed   = "speed"
	FactorClass   = "class"
	FactorForm    = "form"
	FactorWorkout = "workout"
	FactorJockey  = "jockey"
	FactorTrainer = "trainer"
)

// factorNames in composite order.
var factorNames = []string{
	FactorSpeed, FactorClass, FactorForm, FactorWorkout, FactorJockey, FactorTrainer,
}

// clamp100 bounds a rating to the 0-100 scale.
func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// normalizeSpeed maps an E-scale figure (roughly 20-120) onto 0-100.
func normalizeSpeed(figure float64) float64 {
	return clamp100((figure - 20.0) * 1.25)
}

// speedRating prefers the enrichment speed figure and falls back to a
// recency-weighted average of past E figures. ok is false with no data.
func speedRating(h model.Horse) (float64, bool) {
	if h.Enrichment != nil && h.Enrichment.SpeedFigure > 0 {
		return normalizeSpeed(h.Enrichment.SpeedFigure), true
	}

	var sum, weights float64
	count := 0
	for i, r := range h.Results {
		if count >= 10 {
			break
		}
		if r.SpeedScore <= 0 {
			continue
		}
		w := 1.0 / float64(i+1)
		sum += r.SpeedScore * w
		weights += w
		count++
	}
	if weights == 0 {
		return 0, false
	}
	return normalizeSpeed(sum / weights), true
}

// classRating scores recent finishes as a proxy for competition level,
// adjusted for the current race type.
func classRating(h model.Horse, raceType string) (float64, bool) {
	var scores []float64
	for i, r := range h.Results {
		if i >= 8 {
			break
		}
		if r.FinishPos <= 0 {
			continue
		}
		score := 100.0 - float64(r.FinishPos-1)*10
		if score < 0 {
			score = 0
		}
		scores = append(scores, score)
	}
	if len(scores) == 0 {
		return 0, false
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	rating := sum / float64(len(scores))

	upper := strings.ToUpper(raceType)
	if strings.Contains(upper, "MAIDEN") {
		rating *= 0.9
	} else if strings.Contains(upper, "STAKES") {
		rating *= 1.1
	}
	return clamp100(rating), true
}

// formRating measures recent consistency over the last six starts. At
// least three starts are needed for the trend to mean anything.
func formRating(h model.Horse) (float64, bool) {
	if len(h.Results) < 3 {
		return 0, false
	}

	recent := h.Results
	if len(recent) > 6 {
		recent = recent[:6]
	}

	var points, maxPossible float64
	for i, r := range recent {
		weight := 1.0 - float64(i)*0.1
		maxPossible += 10 * weight
		if r.FinishPos <= 0 {
			continue
		}
		p := 11.0 - float64(r.FinishPos)
		if p < 0 {
			p = 0
		}
		points += p * weight
	}
	if maxPossible == 0 {
		return 0, false
	}
	return clamp100(points / maxPossible * 100), true
}

// workoutBenchmarks are standard times per furlong distance, in seconds.
var workoutBenchmarks = map[string]float64{
	"3f": 36.0,
	"4f": 48.0,
	"5f": 60.0,
	"6f": 72.0,
}

// workoutRating scores the last five workouts against distance benchmarks,
// weighting the most recent highest.
func workoutRating(h model.Horse) (float64, bool) {
	recent := h.Workouts
	if len(recent) > 5 {
		recent = recent[:5]
	}

	var sum, weights float64
	n := 0
	for _, w := range recent {
		score, ok := evaluateWorkout(w)
		if !ok {
			continue
		}
		weight := 1.0 / float64(n+1)
		sum += score * weight
		weights += weight
		n++
	}
	if weights == 0 {
		return 0, false
	}
	return clamp100(sum / weights), true
}

// evaluateWorkout rates one workout time against its distance benchmark.
// Breezing works score a touch higher, handily works slightly so.
func evaluateWorkout(w model.Workout) (float64, bool) {
	seconds, ok := parseWorkoutTime(w.Time)
	if !ok || seconds <= 0 {
		return 0, false
	}

	benchmark, ok := workoutBenchmarks[strings.ToLower(strings.TrimSpace(w.Distance))]
	if !ok {
		benchmark = 60.0
	}

	rating := benchmark/seconds*50 + 25
	wtype := strings.ToLower(w.WorkoutType)
	if strings.Contains(wtype, "b") {
		rating *= 1.1
	} else if strings.Contains(wtype, "h") {
		rating *= 1.05
	}
	return clamp100(rating), true
}

// parseWorkoutTime handles "48.20" and "1:12.40" style times.
func parseWorkoutTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i := strings.Index(s, ":"); i >= 0 {
		mins, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, false
		}
		secs, err := strconv.ParseFloat(s[i+1:], 64)
		if err != nil {
			return 0, false
		}
		return float64(mins)*60 + secs, true
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return secs, true
}

// connectionsRating maps a win percentage onto the 30-90 band. It backs
// both the jockey and trainer factors, fed by the enrichment combo figure.
func connectionsRating(h model.Horse) (float64, bool) {
	if h.Enrichment == nil || h.Enrichment.ComboWinPct <= 0 {
		return 0, false
	}
	rating := h.Enrichment.ComboWinPct * 3.0
	if rating < 30 {
		rating = 30
	}
	if rating > 90 {
		rating = 90
	}
	return rating, true
}

// horseFactors computes every available factor for one horse. Missing
// factors are absent from the map; the engine substitutes the race average.
func horseFactors(h model.Horse, raceType string) map[string]float64 {
	factors := map[string]float64{}
	if v, ok := speedRating(h); ok {
		factors[FactorSpeed] = v
	}
	if v, ok := classRating(h, raceType); ok {
		factors[FactorClass] = v
	}
	if v, ok := formRating(h); ok {
		factors[FactorForm] = v
	}
	if v, ok := workoutRating(h); ok {
		factors[FactorWorkout] = v
	}
	if v, ok := connectionsRating(h); ok {
		factors[FactorJockey] = v
		factors[FactorTrainer] = v
	}
	return factors
}
