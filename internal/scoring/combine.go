// Package scoring combines the two provider estimates into the final
// probability that drives the alert decision.
package scoring

import "math"

// Combine merges the two provider scores into one final probability:
// the arithmetic mean rounded to 3 decimal places. Both signals get
// equal trust; the function is pure and commutative.
func Combine(numeric, narrative float64) float64 {
	return math.Round((numeric+narrative)/2*1000) / 1000
}

// Clamp01 normalizes a score into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
