package irt

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite is returned when a theta or difficulty is NaN or infinite.
var ErrNonFinite = errors.New("irt: non-finite value")

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateTheta rejects a non-finite ability.
func ValidateTheta(theta float64) error {
	if !finite(theta) {
		return fmt.Errorf("theta %v: %w", theta, ErrNonFinite)
	}
	return nil
}

// ValidateDifficulty rejects a non-finite difficulty.
func ValidateDifficulty(difficulty float64) error {
	if !finite(difficulty) {
		return fmt.Errorf("difficulty %v: %w", difficulty, ErrNonFinite)
	}
	return nil
}

// ValidateResponses checks every response difficulty.
func ValidateResponses(responses []Response) error {
	for i, r := range responses {
		if !finite(r.Difficulty) {
			return fmt.Errorf("response %d difficulty %v: %w", i, r.Difficulty, ErrNonFinite)
		}
	}
	return nil
}

// ValidateItems checks every item difficulty.
func ValidateItems[ID comparable](items []Item[ID]) error {
	for i, it := range items {
		if !finite(it.Difficulty) {
			return fmt.Errorf("item %d (%v) difficulty %v: %w", i, it.ID, it.Difficulty, ErrNonFinite)
		}
	}
	return nil
}
