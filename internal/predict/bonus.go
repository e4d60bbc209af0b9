package predict

import (
	"strings"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// bonusBound caps the contextual bonus so it can never dominate the
// weighted base score.
const bonusBound = 5.0

// RaceContext carries the race-level attributes the bonus heuristics read.
type RaceContext struct {
	Surface    string
	Distance   string
	RaceType   string
	Conditions string
}

// BonusFunc adjusts a horse's composite with race context. The engine
// clamps the returned value to [-bonusBound, +bonusBound].
type BonusFunc func(h model.Horse, race RaceContext, fieldSize int) float64

// distanceFlags classifies the race shape from its distance and surface
// strings.
type distanceFlags struct {
	is5f    bool
	is65f   bool
	is7f    bool
	isRoute bool
	isTurf  bool
	isDirt  bool
}

func classifyRace(race RaceContext) distanceFlags {
	d := strings.ToLower(race.Distance)
	s := strings.ToLower(race.Surface)
	is65 := strings.Contains(d, "6 1/2") || strings.Contains(d, "6.5")
	return distanceFlags{
		is5f:    strings.Contains(d, "5") && strings.Contains(d, "furlong") && !is65,
		is65f:   is65,
		is7f:    strings.Contains(d, "7") && strings.Contains(d, "furlong"),
		isRoute: strings.Contains(d, "mile"),
		isTurf:  strings.Contains(s, "turf"),
		isDirt:  strings.Contains(s, "dirt"),
	}
}

// DefaultBonus is the stock contextual heuristic: post-position bias by
// race shape, a field-size adjustment, and surface/distance suitability
// from past results.
func DefaultBonus(h model.Horse, race RaceContext, fieldSize int) float64 {
	var bonus float64
	flags := classifyRace(race)
	post := h.PostPosition

	// Turf sprints favor inside draws.
	if flags.is5f && flags.isTurf {
		switch {
		case post >= 1 && post <= 3:
			bonus += 3.0
		case post >= 4 && post <= 5:
			bonus += 1.5
		case post >= 8:
			bonus -= 2.0
		}
	}

	// Turf routes give a smaller inside edge.
	if flags.isRoute && flags.isTurf && post >= 1 && post <= 3 {
		bonus += 2.0
	}

	// Dirt routes and 6.5f dirt sprints favor mid posts in bigger fields.
	midMax := fieldSize - 2
	if midMax < 4 {
		midMax = 4
	}
	if flags.isRoute && flags.isDirt && fieldSize >= 6 && post >= 3 && post <= midMax {
		bonus += 1.5
	}
	if flags.is65f && flags.isDirt && fieldSize >= 6 && post >= 3 && post <= midMax {
		bonus += 1.0
	}

	// 7f dirt gives inside and mid posts a slight bump.
	if flags.is7f && flags.isDirt && post >= 1 && post <= 5 {
		bonus += 1.0
	}

	// Outside posts in large fields are a tax everywhere.
	if fieldSize >= 10 && post >= fieldSize-1 {
		bonus -= 1.0
	}

	bonus += suitabilityBonus(h.Results, race)

	return clampBonus(bonus)
}

// suitabilityBonus rewards horses that have already run well over today's
// surface and distance, and dings proven poor fits.
func suitabilityBonus(results []model.PastPerformance, race RaceContext) float64 {
	surface := strings.ToLower(race.Surface)
	distance := strings.ToLower(race.Distance)

	var adj float64
	if fit, ok := fitScore(results, func(r model.PastPerformance) bool {
		return surface != "" && strings.Contains(strings.ToLower(r.Surface), surface)
	}); ok {
		adj += fitAdjustment(fit)
	}
	if fit, ok := fitScore(results, func(r model.PastPerformance) bool {
		rd := strings.ToLower(r.Distance)
		return distance != "" && rd != "" &&
			(strings.Contains(rd, distance) || strings.Contains(distance, rd))
	}); ok {
		adj += fitAdjustment(fit)
	}
	return adj
}

// fitScore averages finish-based scores over the matching subset of past
// starts.
func fitScore(results []model.PastPerformance, match func(model.PastPerformance) bool) (float64, bool) {
	var sum float64
	n := 0
	for _, r := range results {
		if r.FinishPos <= 0 || !match(r) {
			continue
		}
		score := (11.0 - float64(r.FinishPos)) * 10
		if score < 0 {
			score = 0
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func fitAdjustment(fit float64) float64 {
	switch {
	case fit >= 60:
		return 1.5
	case fit <= 40:
		return -1.5
	}
	return 0
}

func clampBonus(b float64) float64 {
	if b > bonusBound {
		return bonusBound
	}
	if b < -bonusBound {
		return -bonusBound
	}
	return b
}
