// Package sizing turns a P&L distribution and signal strength into a
// fractional-Kelly contract count under account constraints.
package sizing

import (
	"encoding/json"
	"math"
)

// KellyParameters holds the inputs to the Kelly formula and the fraction they
// imply. The fraction is fixed at construction.
type KellyParameters struct {
	winRate        float64
	avgWin         float64
	avgLoss        float64
	payoffRatio    float64
	kellyFraction  float64
	signalStrength int
	degraded       bool
}

// NewKellyParameters computes f* = (b*p - q) / b with b = avgWin/avgLoss.
// Negative edges clamp to zero; a non-positive win or loss size degrades to a
// zero fraction.
func NewKellyParameters(winRate, avgWin, avgLoss float64, signalStrength int) KellyParameters {
	k := KellyParameters{
		winRate:        clamp01(winRate),
		avgWin:         avgWin,
		avgLoss:        avgLoss,
		signalStrength: signalStrength,
	}
	if avgWin <= 0 || avgLoss <= 0 || math.IsNaN(avgWin) || math.IsNaN(avgLoss) {
		k.degraded = true
		return k
	}
	k.payoffRatio = avgWin / avgLoss
	p := k.winRate
	f := (k.payoffRatio*p - (1 - p)) / k.payoffRatio
	if f > 0 && !math.IsInf(f, 0) {
		k.kellyFraction = math.Min(f, 1)
	}
	return k
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// WinRate is p.
func (k KellyParameters) WinRate() float64 { return k.winRate }

// AvgWin is the mean winning outcome.
func (k KellyParameters) AvgWin() float64 { return k.avgWin }

// AvgLoss is the magnitude of the mean losing outcome.
func (k KellyParameters) AvgLoss() float64 { return k.avgLoss }

// PayoffRatio is b = avgWin / avgLoss.
func (k KellyParameters) PayoffRatio() float64 { return k.payoffRatio }

// SignalStrength is the 0-3 signal count.
func (k KellyParameters) SignalStrength() int { return k.signalStrength }

// KellyFraction is the full-Kelly fraction, never negative.
func (k KellyParameters) KellyFraction() float64 { return k.kellyFraction }

// Degraded reports that the inputs could not support a Kelly estimate.
func (k KellyParameters) Degraded() bool { return k.degraded }

// MarshalJSON renders the parameters and the implied fraction.
func (k KellyParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"win_rate":        k.winRate,
		"avg_win":         k.avgWin,
		"avg_loss":        k.avgLoss,
		"payoff_ratio":    k.payoffRatio,
		"signal_strength": k.signalStrength,
		"kelly_fraction":  k.kellyFraction,
	})
}

// SignalMultiplier scales the Kelly fraction by conviction: 1.0 at three
// signals, 0.75 at two, 0.5 at one, nothing below.
func SignalMultiplier(count int) float64 {
	switch {
	case count >= 3:
		return 1.0
	case count == 2:
		return 0.75
	case count == 1:
		return 0.5
	default:
		return 0
	}
}

// TierMaxPositionPct is the account share ceiling for a signal count.
func TierMaxPositionPct(count int) float64 {
	switch {
	case count >= 3:
		return 0.05
	case count == 2:
		return 0.03
	case count == 1:
		return 0.02
	default:
		return 0
	}
}
