// Package util provides common utility functions for price and strike calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundCents rounds a dollar amount to the cent.
func RoundCents(x float64) float64 {
	return RoundToTick(x, 0.01)
}

// StrikeIncrement returns the listed strike spacing assumed for an underlying
// trading at price: 2.5 below $50, 5 below $200, 10 above.
func StrikeIncrement(price float64) float64 {
	switch {
	case price < 50:
		return 2.5
	case price < 200:
		return 5
	default:
		return 10
	}
}

// NearestStrike rounds price to the closest assumed listed strike.
func NearestStrike(price float64) float64 {
	return RoundToTick(price, StrikeIncrement(price))
}

// PercentOf returns part as a percentage of whole, 0 when whole is not positive.
func PercentOf(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part * 100 / whole
}
