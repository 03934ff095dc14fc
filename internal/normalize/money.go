package normalize

import "math"

// RoundCents rounds a dollar amount to two decimals. Exact half cents round
// to even, so 0.125 becomes 0.12 and 0.375 becomes 0.38.
func RoundCents(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// DollarsToCents converts a dollar amount to integer cents, halves to even.
func DollarsToCents(v float64) int64 {
	return int64(math.RoundToEven(v * 100))
}

// CentsToDollars converts integer cents back to dollars.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100
}
