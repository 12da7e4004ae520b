package irt

import "math"

// Proportion-correct bounds for the logit; 0 and 1 have no finite logit.
const (
	MinProportion = 0.01
	MaxProportion = 0.99
)

// EstimateItemDifficulty backs a difficulty out of raw right/wrong outcomes
// as the negative logit of the proportion correct. Easier items (more
// correct answers) get lower difficulty. No responses gives 0.
func EstimateItemDifficulty(responses []bool) float64 {
	correct := 0
	for _, ok := range responses {
		if ok {
			correct++
		}
	}
	return DifficultyFromCounts(correct, len(responses))
}

// DifficultyFromCounts is EstimateItemDifficulty over aggregate counters,
// e.g. times_correct and times_served on an item row.
func DifficultyFromCounts(correct, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	p := clamp(float64(correct)/float64(total), MinProportion, MaxProportion)
	return -math.Log(p / (1 - p))
}
