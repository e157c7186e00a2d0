package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPosition() *Position {
	return NewPosition("pos-1", "aapl", StrategyCalendar, 3, 1.25, 125, 150,
		Greeks{Delta: 0.02, Gamma: -0.01, Theta: 0.03, Vega: 0.08}, "")
}

func TestNewPosition_Defaults(t *testing.T) {
	p := newTestPosition()
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, UnknownSector, p.Sector)
	assert.Equal(t, StateOpen, p.State)
	assert.False(t, p.EntryDate.IsZero())
	require.NoError(t, p.Validate())
}

func TestPosition_RiskAndExposure(t *testing.T) {
	p := newTestPosition()
	assert.Equal(t, "375", p.RiskAmount().String())
	assert.InDelta(t, 0.02*150*100*3, p.DeltaDollars(), 1e-9)
	assert.InDelta(t, 0.08*300, p.PositionGreeks().Vega, 1e-9)
}

func TestPosition_Close(t *testing.T) {
	p := newTestPosition()
	require.Error(t, p.Close("  "))
	require.NoError(t, p.Close("profit_target"))
	assert.False(t, p.IsOpen())
	require.NoError(t, p.Validate())
	assert.Error(t, p.Close("again"))
}

func TestPosition_ValidateInvariants(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Position)
		wantErr string
	}{
		{"missing id", func(p *Position) { p.ID = "" }, "ID is required"},
		{"bad strategy", func(p *Position) { p.StrategyType = "iron_fly" }, "unknown strategy type"},
		{"zero contracts", func(p *Position) { p.Contracts = 0 }, "contracts must be > 0"},
		{"negative max loss", func(p *Position) { p.MaxLoss = -1 }, "max loss cannot be negative"},
		{"open with exit date", func(p *Position) { p.ExitDate = time.Now() }, "exit date must be zero"},
		{"closed without reason", func(p *Position) {
			p.State = StateClosed
			p.ExitDate = p.EntryDate.Add(time.Hour)
		}, "exit reason must be set"},
		{"unknown state", func(p *Position) { p.State = "pending" }, "unknown state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPosition()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestOptionQuote_MidAndSpread(t *testing.T) {
	q := OptionQuote{Bid: 1.90, Ask: 2.10, LastPrice: 2.50}
	assert.InDelta(t, 2.00, q.MidPrice(), 1e-12)
	assert.InDelta(t, 10.0, q.SpreadPercentage(), 1e-9)

	oneSided := OptionQuote{Bid: 0, Ask: 2.10, LastPrice: 2.50}
	assert.Equal(t, 2.50, oneSided.MidPrice())
	assert.Equal(t, maxSpreadPercentage, oneSided.SpreadPercentage())
}

func TestDaysUntil(t *testing.T) {
	asOf := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 10, DaysUntil(asOf, asOf.AddDate(0, 0, 10)))
	assert.Equal(t, -2, DaysUntil(asOf, asOf.AddDate(0, 0, -2)))
	assert.Equal(t, 0, DaysUntil(asOf, asOf.Add(3*time.Hour)))
}

func TestOHLCBar_Complete(t *testing.T) {
	assert.True(t, OHLCBar{Open: 1, High: 2, Low: 0.5, Close: 1.5}.Complete())
	assert.False(t, OHLCBar{Open: 1, High: 2, Low: 0, Close: 1.5}.Complete())
}

func TestOptionChain_Summarize(t *testing.T) {
	exp := time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)
	chain := OptionChain{
		Expiration: exp,
		Calls: []OptionQuote{
			{Strike: 145, Bid: 7.0, Ask: 7.4, ImpliedVolatility: 0.42},
			{Strike: 150, Bid: 3.9, Ask: 4.1, ImpliedVolatility: 0.40},
			{Strike: 155, Bid: 1.9, Ask: 2.1, ImpliedVolatility: 0.38},
		},
		Puts: []OptionQuote{
			{Strike: 145, Bid: 1.8, Ask: 2.0, ImpliedVolatility: 0.44},
			{Strike: 150, Bid: 2.9, Ask: 3.1, ImpliedVolatility: 0},
		},
	}

	s, ok := chain.Summarize(153)
	require.True(t, ok)
	assert.Equal(t, 150.0, s.ATMStrike)
	assert.InDelta(t, 0.40, s.ATMIV, 1e-12)
	assert.InDelta(t, 7.0, s.StraddleMid, 1e-12)
	assert.Equal(t, exp, s.Expiration)

	q, found := chain.Find(145, OptionTypePut)
	require.True(t, found)
	assert.Equal(t, 0.44, q.ImpliedVolatility)

	_, ok = OptionChain{Calls: chain.Calls}.Summarize(150)
	assert.False(t, ok)
}
