// Package irt implements the one-parameter logistic (Rasch) model used to
// estimate student ability and pick quiz items.
//
// Theta (ability) and difficulty share one logistic scale. Everything in this
// package is pure: no state, no I/O, safe for concurrent use.
package irt

import "math"

// MaxLogit bounds the exponent fed to math.Exp. At ±35 the logistic is still
// strictly inside (0, 1) in float64.
const MaxLogit = 35.0

// Probability returns the chance a student with the given theta answers an
// item of the given difficulty correctly.
//
//	P = 1 / (1 + e^-(theta - difficulty))
func Probability(theta, difficulty float64) float64 {
	x := clamp(theta-difficulty, -MaxLogit, MaxLogit)
	return 1.0 / (1.0 + math.Exp(-x))
}

// Information returns the Fisher information of one item at theta, P(1-P).
// It peaks at 0.25 when theta equals the item difficulty.
func Information(theta, difficulty float64) float64 {
	p := Probability(theta, difficulty)
	return p * (1 - p)
}

// ExpectedScore is the expected number of correct answers over the items.
func ExpectedScore(theta float64, difficulties []float64) float64 {
	var sum float64
	for _, d := range difficulties {
		sum += Probability(theta, d)
	}
	return sum
}

// TotalInformation sums item information at theta.
func TotalInformation(theta float64, difficulties []float64) float64 {
	var sum float64
	for _, d := range difficulties {
		sum += Information(theta, d)
	}
	return sum
}

// StandardError returns 1/sqrt(total information). With no information
// (no items) it returns +Inf, meaning the estimate has no precision.
func StandardError(theta float64, difficulties []float64) float64 {
	info := TotalInformation(theta, difficulties)
	if info <= 0 {
		return math.Inf(1)
	}
	return 1.0 / math.Sqrt(info)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
