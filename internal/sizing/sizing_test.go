package sizing

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name                     string
		winRate, avgWin, avgLoss float64
		want                     float64
		degraded                 bool
	}{
		{"positive edge", 0.65, 3.00, 2.00, (1.5*0.65 - 0.35) / 1.5, false},
		{"even money coin flip", 0.5, 1, 1, 0, false},
		{"negative edge clamps", 0.2, 1, 2, 0, false},
		{"win rate above one clamps", 1.4, 2, 1, 1, false},
		{"zero avg loss degrades", 0.6, 2, 0, 0, true},
		{"zero avg win degrades", 0.6, 0, 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKellyParameters(tt.winRate, tt.avgWin, tt.avgLoss, 3)
			assert.InDelta(t, tt.want, k.KellyFraction(), 1e-12)
			assert.Equal(t, tt.degraded, k.Degraded())
		})
	}
}

func TestSignalTiers(t *testing.T) {
	assert.Equal(t, 1.0, SignalMultiplier(3))
	assert.Equal(t, 0.75, SignalMultiplier(2))
	assert.Equal(t, 0.5, SignalMultiplier(1))
	assert.Equal(t, 0.0, SignalMultiplier(0))

	assert.Equal(t, 0.05, TierMaxPositionPct(3))
	assert.Equal(t, 0.03, TierMaxPositionPct(2))
	assert.Equal(t, 0.02, TierMaxPositionPct(1))
}

func TestSize_DocumentedScenario(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	k := NewKellyParameters(0.65, 3.00, 2.00, 3)
	require.InDelta(t, 0.4167, k.KellyFraction(), 1e-4)

	p := s.Size(k, 2.00)
	require.True(t, p.IsValid(), p.ValidationErrors())
	assert.Equal(t, 1.0, p.SignalMultiplier())
	assert.Equal(t, 0.05, p.RiskAdjustedFraction())
	assert.Equal(t, 100, s.PracticalContractCeiling())
	assert.Equal(t, 100, p.Contracts())
	assert.Equal(t, "200", p.CapitalRequired().String())
	assert.Contains(t, p.AdjustmentReason(), "clamped to 0.0500")
	assert.Contains(t, p.AdjustmentReason(), "contracts 2500 capped at practical ceiling 100")
}

func TestSize_TierLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccountSize = 1_000_000
	s := NewSizer(cfg, nil)

	two := s.Size(NewKellyParameters(0.9, 3, 1, 2), 500)
	assert.Equal(t, 0.03, two.RiskAdjustedFraction())
	assert.Equal(t, 60, two.Contracts())
	assert.Contains(t, two.AdjustmentReason(), "signal tier")

	one := s.Size(NewKellyParameters(0.9, 3, 1, 1), 500)
	assert.Equal(t, 0.02, one.RiskAdjustedFraction())
	assert.Equal(t, 40, one.Contracts())
}

func TestSize_AccountLimitBelowTier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionPct = 0.01
	p := NewSizer(cfg, nil).Size(NewKellyParameters(0.9, 3, 1, 3), 100)
	assert.Equal(t, 0.01, p.RiskAdjustedFraction())
	assert.Equal(t, 10, p.Contracts())
	assert.Contains(t, p.AdjustmentReason(), "account position limit")
}

func TestSize_FloorApplies(t *testing.T) {
	// A barely positive edge scaled by 0.25 and 0.5 lands under the 0.1% floor.
	k := NewKellyParameters(0.5005, 1, 0.996, 1)
	require.Greater(t, k.KellyFraction(), 0.0)
	p := NewSizer(DefaultConfig(), nil).Size(k, 50)
	assert.Equal(t, 0.001, p.RiskAdjustedFraction())
	assert.Equal(t, 2, p.Contracts())
	assert.Contains(t, p.AdjustmentReason(), "raised to floor")
}

func TestSize_Rejections(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)

	tests := []struct {
		name    string
		k       KellyParameters
		maxLoss float64
		wantErr string
	}{
		{"no edge", NewKellyParameters(0.3, 1, 1, 3), 100, "no positive edge"},
		{"no signals", NewKellyParameters(0.9, 3, 1, 0), 100, "no signals"},
		{"degraded", NewKellyParameters(1, 3, 0, 3), 100, "no winning or losing scenarios"},
		{"bad max loss", NewKellyParameters(0.9, 3, 1, 3), 0, "max loss per contract must be positive"},
		{"budget below one contract", NewKellyParameters(0.9, 3, 1, 3), 9_000, "below one contract"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := s.Size(tt.k, tt.maxLoss)
			assert.False(t, p.IsValid())
			assert.Equal(t, 0, p.Contracts())
			require.NotEmpty(t, p.ValidationErrors())
			assert.Contains(t, p.ValidationErrors()[0], tt.wantErr)
		})
	}
}

func TestPositionSize_JSON(t *testing.T) {
	p := NewSizer(DefaultConfig(), nil).Size(NewKellyParameters(0.65, 3, 2, 3), 2)
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 100, decoded["contracts"])
	assert.EqualValues(t, 200, decoded["capital_required"])
	assert.NotEmpty(t, decoded["adjustment_reason"])
}

func TestNewSizer_Defaults(t *testing.T) {
	s := NewSizer(Config{}, nil)
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestProperty_KellyNeverNegative(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("kelly fraction >= 0 for any p in [0,1] and positive payoffs", prop.ForAll(
		func(p, win, loss float64) bool {
			f := NewKellyParameters(p, win, loss, 3).KellyFraction()
			return f >= 0 && f <= 1
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0.0001, 1000),
		gen.Float64Range(0.0001, 1000),
	))

	properties.Property("contracts never exceed the practical ceiling", prop.ForAll(
		func(p, win, loss, maxLoss float64, signals int) bool {
			s := NewSizer(DefaultConfig(), nil)
			size := s.Size(NewKellyParameters(p, win, loss, signals), maxLoss)
			return size.Contracts() >= 0 && size.Contracts() <= s.PracticalContractCeiling()
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0.01, 100),
		gen.Float64Range(0.01, 100),
		gen.Float64Range(0.01, 5000),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
