package srs

import (
	"math"

	"github.com/phrazzld/recall-api/internal/domain"
)

// calculateNewEaseFactor determines the new ease factor based on the review quality.
//
// A failed review (quality below params.PassingQuality) lowers the ease factor by
// params.FailurePenalty. A passing review applies the SM-2 adjustment
//
//	EF' = EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02))
//
// which is +0.1 for a perfect answer, 0 for q=4 and -0.14 for q=3.
// The result never drops below params.MinEaseFactor.
func calculateNewEaseFactor(currentEF float64, quality int, params *Params) float64 {
	var newEF float64
	if quality < params.PassingQuality {
		newEF = currentEF - params.FailurePenalty
	} else {
		miss := float64(domain.MaxQuality - quality)
		newEF = currentEF + (0.1 - miss*(0.08+miss*0.02))
	}

	newEF = roundTo(newEF, params.EasePrecision)
	if newEF < params.MinEaseFactor {
		newEF = params.MinEaseFactor
	}
	return newEF
}

// calculateNewInterval determines the interval in days after a passing review.
//
// The interval depends on the repetition count after the review: the first pass
// uses params.FirstInterval, the second params.SecondInterval, and every later
// pass multiplies the previous interval by the new ease factor, rounded half away
// from zero and never shorter than one day.
func calculateNewInterval(previousInterval, newRepetitions int, newEF float64, params *Params) int {
	switch newRepetitions {
	case 1:
		return params.FirstInterval
	case 2:
		return params.SecondInterval
	}

	interval := int(math.Round(float64(previousInterval) * newEF))
	if interval < 1 {
		interval = 1
	}
	return interval
}

// calculateNextState maps a scheduling state and a validated quality to the next state.
// It is a pure function; the caller derives the next review time from the interval.
func calculateNextState(state domain.SchedulingState, quality int, params *Params) domain.SchedulingState {
	newEF := calculateNewEaseFactor(state.EaseFactor, quality, params)

	if quality < params.PassingQuality {
		return domain.SchedulingState{
			EaseFactor:   newEF,
			IntervalDays: 1,
			Repetitions:  0,
		}
	}

	newReps := state.Repetitions + 1
	return domain.SchedulingState{
		EaseFactor:   newEF,
		IntervalDays: calculateNewInterval(state.IntervalDays, newReps, newEF, params),
		Repetitions:  newReps,
	}
}

// roundTo rounds v half away from zero to the given number of decimal places.
// Keeping ease factors at two decimals matches their NUMERIC storage and stops
// binary drift from accumulating across many reviews.
func roundTo(v float64, places int) float64 {
	if places <= 0 {
		return math.Round(v)
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
