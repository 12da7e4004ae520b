package irt

import "math"

// Ability bounds. Short all-correct or all-wrong streaks push the maximum
// likelihood estimate toward infinity; the estimate is held to this range.
const (
	MinTheta = -3.0
	MaxTheta = 3.0
)

// Newton-Raphson limits. Persisted thetas were produced with these exact
// values, so changing them changes results.
const (
	MaxIterations        = 20
	ConvergenceTolerance = 0.001
)

// Response is one scored answer to an item of known difficulty.
type Response struct {
	Difficulty float64 `json:"difficulty"`
	Correct    bool    `json:"correct"`
}

// EstimateAbility returns the maximum likelihood theta for the responses,
// starting Newton-Raphson from currentTheta. With no responses the current
// theta is returned unchanged. The result is clamped to [MinTheta, MaxTheta].
func EstimateAbility(currentTheta float64, responses []Response) float64 {
	if len(responses) == 0 {
		return currentTheta
	}

	theta := currentTheta
	for i := 0; i < MaxIterations; i++ {
		var first, second float64
		for _, r := range responses {
			p := Probability(theta, r.Difficulty)
			var u float64
			if r.Correct {
				u = 1.0
			}
			first += u - p
			second -= p * (1 - p)
		}

		if second == 0 {
			continue
		}

		delta := -first / second
		theta += delta
		if math.Abs(delta) < ConvergenceTolerance {
			break
		}
	}

	return ClampTheta(theta)
}

// ClampTheta holds theta to [MinTheta, MaxTheta].
func ClampTheta(theta float64) float64 {
	return clamp(theta, MinTheta, MaxTheta)
}
