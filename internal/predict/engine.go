package predict

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// softmaxTemperature spreads win probabilities over the composite range.
// Composites live on a 0-100 scale; a temperature of 10 keeps a 10-point
// edge meaningful without collapsing the field onto the top pick.
const softmaxTemperature = 10.0

// Engine turns a merged race into ranked predictions. It is a pure
// function of its inputs: the same race produces the same result
// regardless of entry order.
type Engine struct {
	weights Weights
	bonus   BonusFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithBonus replaces the default contextual bonus heuristic.
func WithBonus(fn BonusFunc) Option {
	return func(e *Engine) { e.bonus = fn }
}

// NewEngine validates the weights profile and builds an Engine.
func NewEngine(w Weights, opts ...Option) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{weights: w, bonus: DefaultBonus}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PredictRace scores every entry of one race and ranks the field.
func (e *Engine) PredictRace(race model.Race) model.PredictionResult {
	ctx := RaceContext{
		Surface:    race.Surface,
		Distance:   race.Distance,
		RaceType:   race.RaceType,
		Conditions: race.Conditions,
	}
	fieldSize := len(race.Horses)

	perHorse := make([]map[string]float64, fieldSize)
	for i, h := range race.Horses {
		perHorse[i] = horseFactors(h, race.RaceType)
	}
	averages := factorAverages(perHorse)

	preds := make([]model.HorsePrediction, 0, fieldSize)
	enriched := 0
	for i, h := range race.Horses {
		factors := fillMissing(perHorse[i], averages)

		base := factors[FactorSpeed]*e.weights.Speed +
			factors[FactorClass]*e.weights.Class +
			factors[FactorForm]*e.weights.Form +
			factors[FactorWorkout]*e.weights.Workout +
			factors[FactorJockey]*e.weights.Jockey +
			factors[FactorTrainer]*e.weights.Trainer

		bonus := clampBonus(e.bonus(h, ctx, fieldSize))
		composite := clamp100(base + bonus)

		if h.Enrichment != nil {
			enriched++
		}

		preds = append(preds, model.HorsePrediction{
			HorseName:      h.Name,
			Program:        h.Program,
			PostPosition:   h.PostPosition,
			CompositeScore: composite,
			Factors:        factors,
			DataIncomplete: h.DataIncomplete || len(perHorse[i]) < len(factorNames),
		})
	}

	assignProbabilities(preds)
	rank(preds, race.Horses)

	coverage := 0.0
	if fieldSize > 0 {
		coverage = float64(enriched) / float64(fieldSize) * 100
	}

	result := model.PredictionResult{
		RaceNumber:         race.Number,
		Surface:            race.Surface,
		Distance:           race.Distance,
		Rankings:           preds,
		Rationale:          rationale(preds),
		EnrichmentCoverage: coverage,
		Exotics:            exotics(preds),
	}

	zap.L().Debug("race scored",
		zap.Int("race", race.Number),
		zap.Int("field", fieldSize),
		zap.Float64("coverage_pct", coverage))
	return result
}

// factorAverages computes the race average of each factor over the horses
// that actually have it.
func factorAverages(perHorse []map[string]float64) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, factors := range perHorse {
		for name, v := range factors {
			sums[name] += v
			counts[name]++
		}
	}
	avgs := map[string]float64{}
	for _, name := range factorNames {
		if counts[name] > 0 {
			avgs[name] = sums[name] / float64(counts[name])
		} else {
			// Nobody in the race has this factor; neutral midpoint.
			avgs[name] = 50.0
		}
	}
	return avgs
}

// fillMissing substitutes the race average for any factor the horse lacks,
// so sparse data degrades a horse to the field's level instead of zero.
func fillMissing(factors, averages map[string]float64) map[string]float64 {
	filled := make(map[string]float64, len(factorNames))
	for _, name := range factorNames {
		if v, ok := factors[name]; ok {
			filled[name] = v
		} else {
			filled[name] = averages[name]
		}
	}
	return filled
}

// assignProbabilities converts composites to win probabilities with a
// softmax, so the field always sums to one.
func assignProbabilities(preds []model.HorsePrediction) {
	if len(preds) == 0 {
		return
	}
	maxScore := preds[0].CompositeScore
	for _, p := range preds[1:] {
		if p.CompositeScore > maxScore {
			maxScore = p.CompositeScore
		}
	}

	var total float64
	exps := make([]float64, len(preds))
	for i, p := range preds {
		exps[i] = math.Exp((p.CompositeScore - maxScore) / softmaxTemperature)
		total += exps[i]
	}
	for i := range preds {
		preds[i].WinProbability = exps[i] / total
	}
}

// rank orders predictions by composite descending, breaking ties by career
// earnings descending and finally program ascending. The three keys give a
// strict total order, so the outcome never depends on input order.
func rank(preds []model.HorsePrediction, horses []model.Horse) {
	earnings := map[string]float64{}
	for _, h := range horses {
		earnings[h.Program+"|"+h.Name] = h.Earnings
	}
	earn := func(p model.HorsePrediction) float64 {
		return earnings[p.Program+"|"+p.HorseName]
	}

	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].CompositeScore != preds[j].CompositeScore {
			return preds[i].CompositeScore > preds[j].CompositeScore
		}
		if earn(preds[i]) != earn(preds[j]) {
			return earn(preds[i]) > earn(preds[j])
		}
		return programLess(preds[i].Program, preds[j].Program)
	})
	for i := range preds {
		preds[i].Rank = i + 1
	}
}

// programLess compares program numbers numerically when possible, so "2"
// sorts before "10" and "1A" falls between "1" and "2".
func programLess(a, b string) bool {
	na, ea := strconv.Atoi(strings.TrimRight(a, "ABCX"))
	nb, eb := strconv.Atoi(strings.TrimRight(b, "ABCX"))
	if ea == nil && eb == nil && na != nb {
		return na < nb
	}
	return a < b
}

// rationale summarizes why the top pick leads the field.
func rationale(preds []model.HorsePrediction) string {
	if len(preds) == 0 {
		return ""
	}
	top := preds[0]

	best, bestVal := "", -1.0
	for _, name := range factorNames {
		if v := top.Factors[name]; v > bestVal {
			best, bestVal = name, v
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%s %s leads at %.1f (%.0f%% win), strongest on %s (%.0f)",
		top.Program, top.HorseName, top.CompositeScore, top.WinProbability*100, best, bestVal)
	if len(preds) > 1 {
		second := preds[1]
		fmt.Fprintf(&b, "; #%s %s next at %.1f", second.Program, second.HorseName, second.CompositeScore)
	}
	if top.DataIncomplete {
		b.WriteString("; top pick scored on partial data")
	}
	return b.String()
}

// exotics derives wager structures from the top four ranks.
func exotics(preds []model.HorsePrediction) model.ExoticSuggestions {
	if len(preds) < 2 {
		return model.ExoticSuggestions{}
	}
	top := preds
	if len(top) > 4 {
		top = top[:4]
	}
	programs := make([]string, len(top))
	for i, p := range top {
		programs[i] = p.Program
	}

	ex := model.ExoticSuggestions{
		Win:    programs[0],
		Exacta: []string{programs[0] + "-" + programs[1], "box " + programs[0] + "," + programs[1]},
	}
	if len(programs) >= 3 {
		ex.Trifecta = []string{
			strings.Join(programs[:3], "-"),
			"box " + strings.Join(programs[:3], ","),
		}
	}
	return ex
}
