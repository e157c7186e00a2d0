package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        1.2345,
			tick:     0.01,
			expected: 1.23,
		},
		{
			name:     "tie rounds away from zero",
			x:        1.235,
			tick:     0.01,
			expected: 1.24,
		},
		{
			name:     "strike increment",
			x:        151.9,
			tick:     5,
			expected: 150,
		},
		{
			name:     "half strike increment",
			x:        43.8,
			tick:     2.5,
			expected: 45,
		},
		{
			name:     "zero tick returns input",
			x:        1.2345,
			tick:     0,
			expected: 1.2345,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestRoundToTickNaN(t *testing.T) {
	if result := RoundToTick(math.NaN(), 0.01); !math.IsNaN(result) {
		t.Errorf("RoundToTick(NaN, 0.01) = %v, expected NaN", result)
	}
}

func TestNearestStrike(t *testing.T) {
	tests := []struct {
		price     float64
		increment float64
		strike    float64
	}{
		{price: 23.4, increment: 2.5, strike: 22.5},
		{price: 49.99, increment: 2.5, strike: 50},
		{price: 50, increment: 5, strike: 50},
		{price: 152.6, increment: 5, strike: 155},
		{price: 199.9, increment: 5, strike: 200},
		{price: 200, increment: 10, strike: 200},
		{price: 487, increment: 10, strike: 490},
	}

	for _, tt := range tests {
		if got := StrikeIncrement(tt.price); got != tt.increment {
			t.Errorf("StrikeIncrement(%v) = %v, expected %v", tt.price, got, tt.increment)
		}
		if got := NearestStrike(tt.price); math.Abs(got-tt.strike) > 1e-10 {
			t.Errorf("NearestStrike(%v) = %v, expected %v", tt.price, got, tt.strike)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(6, 150); math.Abs(got-4) > 1e-12 {
		t.Errorf("PercentOf(6, 150) = %v, expected 4", got)
	}
	if got := PercentOf(6, 0); got != 0 {
		t.Errorf("PercentOf(6, 0) = %v, expected 0", got)
	}
}
