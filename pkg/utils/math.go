package utils

import (
	"math"
)

// Round rounds a float64 to the specified number of decimal places
func Round(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

// AlmostEqual reports whether a and b differ by at most tol
func AlmostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
