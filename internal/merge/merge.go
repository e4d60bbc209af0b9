// Package merge reconciles the entry card, horse profiles and enrichment
// data into a single view per horse.
package merge

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// DefaultDivergenceTolerance is the largest gap, in speed-figure points,
// allowed between the enrichment figure and the figure derived from past
// performances before the horse is flagged for review.
const DefaultDivergenceTolerance = 15.0

var foldCaser = cases.Fold()

// Key is the identity of one entry. Two sources describe the same horse
// only when both the folded name and the program number agree.
type Key struct {
	Name    string
	Program string
}

// CanonicalKey folds case and collapses interior whitespace so cosmetic
// differences between pages never split one horse into two.
func CanonicalKey(name, program string) Key {
	folded := foldCaser.String(strings.TrimSpace(name))
	return Key{
		Name:    strings.Join(strings.Fields(folded), " "),
		Program: strings.ToUpper(strings.TrimSpace(program)),
	}
}

// WorkItem is one profile fetch to perform, in card order.
type WorkItem struct {
	RaceNumber int
	Horse      model.Horse
}

// BuildWorklist flattens the card into profile work items, deduplicating by
// canonical identity. Entries without a usable profile link stay on the
// list marked DataIncomplete so they still reach the engine. maxHorses
// caps the list when positive.
func BuildWorklist(card *model.RaceCard, maxHorses int) []WorkItem {
	seen := map[Key]bool{}
	var items []WorkItem

	for _, race := range card.Races {
		for _, horse := range race.Horses {
			key := CanonicalKey(horse.Name, horse.Program)
			// Same horse can appear once per race; scope identity to the race.
			raceKey := Key{Name: key.Name, Program: key.Program + "#" + strconv.Itoa(race.Number)}
			if seen[raceKey] {
				continue
			}
			seen[raceKey] = true

			if horse.ProfileURL == "" {
				horse.DataIncomplete = true
				zap.L().Warn("entry has no profile link",
					zap.String("horse", horse.Name), zap.Int("race", race.Number))
			}
			items = append(items, WorkItem{RaceNumber: race.Number, Horse: horse})

			if maxHorses > 0 && len(items) >= maxHorses {
				return items
			}
		}
	}
	return items
}

// Merge attaches enrichment entries to the horses of one race, matching by
// canonical identity and falling back to name alone when the enrichment
// page omits program numbers. The order of horses is preserved exactly.
func Merge(horses []model.Horse, entries []model.EnrichmentEntry, tolerance float64) []model.Horse {
	if tolerance <= 0 {
		tolerance = DefaultDivergenceTolerance
	}

	byKey := map[Key]*model.EnrichmentEntry{}
	byName := map[string]*model.EnrichmentEntry{}
	for i := range entries {
		e := &entries[i]
		k := CanonicalKey(e.HorseName, e.Program)
		byKey[k] = e
		byName[k.Name] = e
	}

	out := make([]model.Horse, len(horses))
	for i, horse := range horses {
		merged := horse
		key := CanonicalKey(horse.Name, horse.Program)

		entry, ok := byKey[key]
		if !ok {
			entry, ok = byName[key.Name]
		}
		if ok {
			e := *entry
			e.QualityRating = QualityRating(merged.Results, merged.Workouts)
			merged.Enrichment = &e
			if merged.Earnings == 0 && e.EarningsPerStart > 0 {
				merged.Earnings = e.EarningsPerStart
			}
			checkDivergence(&merged, &e, tolerance)
		}
		out[i] = merged
	}
	return out
}

// QualityRating scores a horse 0-100 from its recent results and workouts.
// Base 50; the last three starts add for wins, in-the-money finishes and
// high speed figures, recent workouts add a little more.
func QualityRating(results []model.PastPerformance, workouts []model.Workout) float64 {
	score := 50.0

	if len(results) > 0 {
		score += 5
		for i, r := range results {
			if i >= 3 {
				break
			}
			switch {
			case r.FinishPos == 1:
				score += 10
			case r.FinishPos > 0 && r.FinishPos <= 3:
				score += 5
			}
			switch {
			case r.SpeedScore >= 90:
				score += 8
			case r.SpeedScore >= 80:
				score += 4
			}
		}
	}

	if len(workouts) > 0 {
		score += 3
		for i, w := range workouts {
			if i >= 3 {
				break
			}
			if secs, ok := workoutSeconds(w.Time); ok && secs < 60 {
				score += 2
			}
		}
	}

	return math.Round(math.Min(100, math.Max(0, score))*10) / 10
}

// workoutSeconds parses a "m:ss.ff" workout time. Times without a minute
// component are not comparable across distances and are skipped.
func workoutSeconds(t string) (float64, bool) {
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	mins, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, false
	}
	return float64(mins)*60 + secs, true
}

// checkDivergence compares the enrichment speed figure against the figure
// derived from past performances. Beyond tolerance both values are kept
// and the horse is flagged; neither source wins.
func checkDivergence(horse *model.Horse, entry *model.EnrichmentEntry, tolerance float64) {
	if entry.SpeedFigure == 0 {
		return
	}
	derived, ok := DerivedSpeedFigure(horse.Results)
	if !ok {
		return
	}
	if math.Abs(entry.SpeedFigure-derived) > tolerance {
		horse.ValidationFlag = true
		zap.L().Warn("speed figure divergence",
			zap.String("horse", horse.Name),
			zap.Float64("enrichment", entry.SpeedFigure),
			zap.Float64("derived", derived),
			zap.Float64("tolerance", tolerance))
	}
}

// DerivedSpeedFigure computes a recency-weighted average of the horse's
// past speed scores, weighting start i by 1/(i+1). The boolean is false
// when no usable scores exist.
func DerivedSpeedFigure(results []model.PastPerformance) (float64, bool) {
	var sum, weights float64
	for i, r := range results {
		if r.SpeedScore <= 0 {
			continue
		}
		w := 1.0 / float64(i+1)
		sum += r.SpeedScore * w
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights, true
}
