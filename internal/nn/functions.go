package nn

import "math"

// SaturationWithSpread clamps values to the symmetric range [-spread, spread].
func SaturationWithSpread(value, spread float64) float64 {
	spread = math.Abs(spread)
	return Sat(value, spread, -spread)
}

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
