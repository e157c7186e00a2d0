package greeks

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
)

var asOf = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func quote(t models.OptionType, strike float64, dte int, iv, mid float64) models.OptionQuote {
	return models.OptionQuote{
		Symbol:            "AAPL",
		OptionType:        t,
		Strike:            strike,
		Expiration:        asOf.AddDate(0, 0, dte),
		Bid:               mid * 0.98,
		Ask:               mid * 1.02,
		ImpliedVolatility: iv,
		OpenInterest:      100,
	}
}

func TestLeg_BlackScholes(t *testing.T) {
	c := NewCalculator(nil, 0.05, nil)
	leg := c.Leg(quote(models.OptionTypeCall, 150, 30, 0.30, 5), 150, asOf)

	assert.Equal(t, MethodBlackScholes, leg.Method)
	want := pricing.BlackScholes{}.Greeks(pricing.Input{
		Spot: 150, Strike: 150, Years: 30.0 / 365, Rate: 0.05, Vol: 0.30, IsCall: true,
	})
	assert.InDelta(t, want.Delta, leg.Delta, 1e-12)
	assert.InDelta(t, want.Vega, leg.Vega, 1e-12)
	assert.Less(t, leg.Theta, 0.0)
}

func TestLeg_Heuristic(t *testing.T) {
	c := NewCalculator(nil, 0.05, nil)

	tests := []struct {
		name      string
		q         models.OptionQuote
		wantDelta float64
		wantTheta float64
	}{
		{"near money call, long dated", quote(models.OptionTypeCall, 152, 45, 0, 4), 0.5, -0.02 * 4},
		{"near money put, short dated", quote(models.OptionTypePut, 148, 10, 0, 3), -0.5, -0.05 * 3},
		{"far call", quote(models.OptionTypeCall, 180, 45, 0, 1), 0.2, -0.02 * 1},
		{"far put inside 30 days", quote(models.OptionTypePut, 120, 20, 0, 0.5), -0.2, -0.05 * 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := c.Leg(tt.q, 150, asOf)
			assert.Equal(t, MethodHeuristic, leg.Method)
			assert.Equal(t, tt.wantDelta, leg.Delta)
			assert.InDelta(t, tt.wantTheta, leg.Theta, 1e-9)
			assert.Greater(t, leg.Vega, 0.0)
			assert.Greater(t, leg.Gamma, 0.0)
		})
	}
}

func TestLeg_HeuristicGammaScalesWithSpot(t *testing.T) {
	c := NewCalculator(nil, 0.05, nil)
	tests := []struct {
		name   string
		spot   float64
		strike float64
	}{
		{"spot 50", 50, 50},
		{"spot 100", 100, 100},
		{"spot 400", 400, 400},
	}
	years := pricing.YearsFromDays(45)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := c.Leg(quote(models.OptionTypeCall, tt.strike, 45, 0, 4), tt.spot, asOf)
			require.Equal(t, MethodHeuristic, leg.Method)
			want := 0.4 / (tt.spot * heuristicVol * math.Sqrt(years))
			assert.InDelta(t, want, leg.Gamma, 1e-9)
		})
	}

	low := c.Leg(quote(models.OptionTypeCall, 100, 45, 0, 4), 100, asOf)
	high := c.Leg(quote(models.OptionTypeCall, 200, 45, 0, 4), 200, asOf)
	assert.InDelta(t, low.Gamma/2, high.Gamma, 1e-9)
}

func TestLeg_ExpiredCollapse(t *testing.T) {
	c := NewCalculator(nil, 0.05, nil)

	tests := []struct {
		name  string
		typ   models.OptionType
		spot  float64
		delta float64
	}{
		{"call in the money", models.OptionTypeCall, 160, 1},
		{"call at strike", models.OptionTypeCall, 150, 0.5},
		{"call out of the money", models.OptionTypeCall, 140, 0},
		{"put in the money", models.OptionTypePut, 140, -1},
		{"put at strike", models.OptionTypePut, 150, -0.5},
		{"put out of the money", models.OptionTypePut, 160, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := c.Leg(quote(tt.typ, 150, 0, 0.4, 2), tt.spot, asOf)
			assert.Equal(t, MethodExpired, leg.Method)
			assert.Equal(t, tt.delta, leg.Delta)
			assert.Zero(t, leg.Gamma)
			assert.Zero(t, leg.Theta)
			assert.Zero(t, leg.Vega)
		})
	}
}

func TestCalendar_NetIsBackMinusFront(t *testing.T) {
	front := quote(models.OptionTypeCall, 150, 10, 0.60, 6.0)
	back := quote(models.OptionTypeCall, 150, 38, 0.35, 6.8)
	cal := trade.NewCalendarTrade("AAPL", 150, front, back, asOf, 0.05, trade.DefaultLimits(), nil)

	c := NewCalculator(nil, 0.05, nil)
	s := c.Calendar(cal)

	f, b := s.Legs["front"], s.Legs["back"]
	assert.InDelta(t, b.Delta-f.Delta, s.Net.Delta, 1e-12)
	assert.InDelta(t, b.Vega-f.Vega, s.Net.Vega, 1e-12)
	// Short the faster-decaying front leg.
	assert.Greater(t, s.Net.Theta, 0.0)
	assert.Greater(t, s.Net.Vega, 0.0)

	assert.InDelta(t, s.Net.Delta*150*100, s.DeltaDollars(), 1e-9)
	assert.InDelta(t, s.Net.Theta*100, s.ThetaDollars(), 1e-9)
	assert.InDelta(t, s.Net.Vega*100, s.VegaDollars(), 1e-9)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.InDelta(t, s.ThetaDollars(), decoded["theta_dollars"], 1e-9)
	assert.Contains(t, decoded, "net")
}

func TestStraddle_ShortBothLegs(t *testing.T) {
	call := quote(models.OptionTypeCall, 150, 10, 0.60, 6.0)
	put := quote(models.OptionTypePut, 150, 10, 0.60, 5.8)
	st := trade.NewStraddleTrade("AAPL", 150, call, put, asOf, trade.DefaultLimits())

	s := NewCalculator(nil, 0.05, nil).Straddle(st, 150, asOf)
	assert.Less(t, s.Net.Vega, 0.0)
	assert.Less(t, s.Net.Gamma, 0.0)
	assert.Greater(t, s.Net.Theta, 0.0)
	assert.InDelta(t, 0, s.Net.Delta, 0.15)
}
