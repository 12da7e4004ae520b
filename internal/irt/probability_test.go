package irt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbability_EqualThetaAndDifficulty(t *testing.T) {
	for _, theta := range []float64{-3, -1.25, 0, 0.7, 2, 3} {
		assert.Equal(t, 0.5, Probability(theta, theta), "theta=%v", theta)
	}
}

func TestProbability_IncreasingInTheta(t *testing.T) {
	prev := Probability(-6, 0)
	for theta := -5.5; theta <= 6; theta += 0.5 {
		p := Probability(theta, 0)
		assert.Greater(t, p, prev, "theta=%v", theta)
		prev = p
	}
}

func TestProbability_DecreasingInDifficulty(t *testing.T) {
	prev := Probability(0, -6)
	for b := -5.5; b <= 6; b += 0.5 {
		p := Probability(0, b)
		assert.Less(t, p, prev, "difficulty=%v", b)
		prev = p
	}
}

func TestProbability_StrictlyInsideUnitInterval(t *testing.T) {
	cases := []struct{ theta, b float64 }{
		{0, 0},
		{3, -3},
		{-3, 3},
		{1e6, -1e6},
		{-1e6, 1e6},
		{math.MaxFloat64 / 4, 0},
		{0, math.MaxFloat64 / 4},
	}
	for _, tc := range cases {
		p := Probability(tc.theta, tc.b)
		assert.Greater(t, p, 0.0, "theta=%v b=%v", tc.theta, tc.b)
		assert.Less(t, p, 1.0, "theta=%v b=%v", tc.theta, tc.b)
		assert.False(t, math.IsNaN(p))
	}
}

func TestProbability_KnownValues(t *testing.T) {
	assert.InDelta(t, 0.7310585786, Probability(1, 0), 1e-9)
	assert.InDelta(t, 0.2689414214, Probability(0, 1), 1e-9)
	assert.InDelta(t, 0.9525741268, Probability(2, -1), 1e-9)
}

func TestInformation(t *testing.T) {
	assert.Equal(t, 0.25, Information(1.5, 1.5))

	for _, b := range []float64{-3, -1, -0.2, 0.2, 1, 3} {
		p := Probability(0, b)
		info := Information(0, b)
		assert.InDelta(t, p*(1-p), info, 1e-15)
		assert.Less(t, info, 0.25, "difficulty=%v", b)
		assert.Greater(t, info, 0.0, "difficulty=%v", b)
	}

	assert.Greater(t, Information(1e6, -1e6), 0.0)
}

func TestExpectedScore(t *testing.T) {
	assert.Equal(t, 0.0, ExpectedScore(1, nil))
	assert.Equal(t, 2.0, ExpectedScore(0, []float64{0, 0, 0, 0}))
	assert.InDelta(t, Probability(1, 0)+Probability(1, 2), ExpectedScore(1, []float64{0, 2}), 1e-15)
}

func TestTotalInformation(t *testing.T) {
	assert.Equal(t, 0.0, TotalInformation(0, []float64{}))
	assert.Equal(t, 1.0, TotalInformation(0.5, []float64{0.5, 0.5, 0.5, 0.5}))
}

func TestStandardError(t *testing.T) {
	se := StandardError(0, nil)
	assert.True(t, math.IsInf(se, 1), "empty difficulties should give +Inf, got %v", se)

	assert.Equal(t, 2.0, StandardError(0, []float64{0}))
	assert.Equal(t, 1.0, StandardError(0, []float64{0, 0, 0, 0}))

	// More items, more precision.
	assert.Less(t, StandardError(0, []float64{0, 1, -1, 0.5}), StandardError(0, []float64{0, 1}))
}
