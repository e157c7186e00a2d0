package pnl

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
)

// MinIV is the floor applied to crushed implied volatilities.
const MinIV = 0.01

// Config is the scenario grid shape.
type Config struct {
	Multipliers   Multipliers
	PriceRangePct float64
	PriceStepPct  float64
	RiskFreeRate  float64
}

// DefaultConfig returns +/-10% in 1% steps with the default multipliers.
func DefaultConfig() Config {
	return Config{
		Multipliers:   DefaultMultipliers(),
		PriceRangePct: 10,
		PriceStepPct:  1,
		RiskFreeRate:  0.05,
	}
}

// PriceMoves returns the price-change percentages of the grid, symmetric
// around zero.
func (c Config) PriceMoves() []float64 {
	steps := int(math.Round(c.PriceRangePct / c.PriceStepPct))
	moves := make([]float64, 0, 2*steps+1)
	for i := -steps; i <= steps; i++ {
		moves = append(moves, float64(i)*c.PriceStepPct)
	}
	return moves
}

// Outcome is one revalued grid cell. Values are per share.
type Outcome struct {
	Scenario       Scenario `json:"iv_crush_scenario"`
	PriceChangePct float64  `json:"price_change_pct"`
	NewUnderlying  float64  `json:"new_underlying"`
	FrontIV        float64  `json:"front_iv"`
	BackIV         float64  `json:"back_iv"`
	FrontValue     float64  `json:"front_value"`
	BackValue      float64  `json:"back_value"`
	PositionValue  float64  `json:"position_value"`
	PnL            float64  `json:"pnl"`
}

// Summary is computed once over every outcome of a grid.
type Summary struct {
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std"`
	P5      float64 `json:"p5"`
	P25     float64 `json:"p25"`
	P75     float64 `json:"p75"`
	P95     float64 `json:"p95"`
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	// AvgLoss is the magnitude of the mean losing outcome.
	AvgLoss float64 `json:"avg_loss"`
	Count   int     `json:"count"`
	Wins    int     `json:"wins"`
}

// Grid is an immutable set of outcomes and their summary.
type Grid struct {
	outcomes []Outcome
	params   IVCrushParameters
	summary  Summary
	cost     float64
}

// Outcomes returns a copy of the grid cells.
func (g *Grid) Outcomes() []Outcome { return append([]Outcome(nil), g.outcomes...) }

// Summary returns the grid statistics.
func (g *Grid) Summary() Summary { return g.summary }

// Parameters returns the crush assumptions used.
func (g *Grid) Parameters() IVCrushParameters { return g.params }

// EntryCost is the per-share debit (or negative credit) the P&L is measured against.
func (g *Grid) EntryCost() float64 { return g.cost }

// Engine revalues trades across the scenario grid.
type Engine struct {
	vm     pricing.VolatilityMath
	logger *logrus.Logger
	cfg    Config
}

// NewEngine creates a scenario engine. A nil vm defaults to Black-Scholes.
func NewEngine(cfg Config, vm pricing.VolatilityMath, logger *logrus.Logger) *Engine {
	def := DefaultConfig()
	if cfg.PriceRangePct <= 0 {
		cfg.PriceRangePct = def.PriceRangePct
	}
	if cfg.PriceStepPct <= 0 || cfg.PriceStepPct > cfg.PriceRangePct {
		cfg.PriceStepPct = def.PriceStepPct
	}
	if vm == nil {
		vm = pricing.BlackScholes{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Engine{cfg: cfg, vm: vm, logger: logger}
}

type leg struct {
	quote models.OptionQuote
	dte   int
	drop  float64
}

func (e *Engine) revalue(l leg, spot, mult float64) (value, iv float64) {
	iv = math.Max(MinIV, l.quote.ImpliedVolatility*(1-l.drop*mult))
	value = e.vm.Price(pricing.Input{
		Spot:   spot,
		Strike: l.quote.Strike,
		Years:  pricing.YearsFromDays(float64(l.dte - 1)),
		Rate:   e.cfg.RiskFreeRate,
		Vol:    iv,
		IsCall: l.quote.OptionType.IsCall(),
	})
	return value, iv
}

// SimulateCalendar revalues the calendar one day forward at every grid cell.
// P&L is the new spread value minus the debit paid.
func (e *Engine) SimulateCalendar(t *trade.CalendarTrade, params IVCrushParameters) (*Grid, error) {
	if t == nil {
		return nil, fmt.Errorf("no calendar trade to simulate: %w", models.ErrInsufficientData)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	front := leg{quote: t.FrontOption(), dte: t.FrontDTE(), drop: params.FrontIVDrop}
	back := leg{quote: t.BackOption(), dte: t.BackDTE(), drop: params.BackIVDrop}

	return e.simulate(t.UnderlyingPrice(), t.NetDebit(), params, func(spot, mult float64) Outcome {
		fv, fiv := e.revalue(front, spot, mult)
		bv, biv := e.revalue(back, spot, mult)
		return Outcome{
			FrontIV: fiv, BackIV: biv,
			FrontValue: fv, BackValue: bv,
			PositionValue: bv - fv,
			PnL:           bv - fv - t.NetDebit(),
		}
	})
}

// SimulateStraddle revalues a short straddle. Both legs crush by the front
// drop; P&L is the credit kept minus the cost to buy back.
func (e *Engine) SimulateStraddle(s *trade.StraddleTrade, spot float64, asOf time.Time,
	params IVCrushParameters) (*Grid, error) {
	if s == nil {
		return nil, fmt.Errorf("no straddle to simulate: %w", models.ErrInsufficientData)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	call := leg{quote: s.CallOption(), dte: s.CallOption().DaysToExpiry(asOf), drop: params.FrontIVDrop}
	put := leg{quote: s.PutOption(), dte: s.PutOption().DaysToExpiry(asOf), drop: params.FrontIVDrop}

	return e.simulate(spot, -s.NetCredit(), params, func(newSpot, mult float64) Outcome {
		cv, civ := e.revalue(call, newSpot, mult)
		pv, _ := e.revalue(put, newSpot, mult)
		return Outcome{
			FrontIV:       civ,
			FrontValue:    cv,
			BackValue:     pv,
			PositionValue: -(cv + pv),
			PnL:           s.NetCredit() - (cv + pv),
		}
	})
}

func (e *Engine) simulate(spot, cost float64, params IVCrushParameters,
	cell func(spot, mult float64) Outcome) (*Grid, error) {
	if spot <= 0 {
		return nil, fmt.Errorf("underlying price must be positive: %w", models.ErrInsufficientData)
	}
	moves := e.cfg.PriceMoves()
	outcomes := make([]Outcome, 0, len(moves)*len(Scenarios))
	for _, sc := range Scenarios {
		mult := e.cfg.Multipliers.For(sc)
		for _, move := range moves {
			newSpot := spot * (1 + move/100)
			o := cell(newSpot, mult)
			o.Scenario = sc
			o.PriceChangePct = move
			o.NewUnderlying = newSpot
			outcomes = append(outcomes, o)
		}
	}

	summary, err := summarize(outcomes)
	if err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"scenarios": summary.Count,
		"win_rate":  summary.WinRate,
		"mean_pnl":  summary.Mean,
		"tier":      params.Tier,
	}).Debug("pnl grid simulated")
	return &Grid{outcomes: outcomes, params: params, summary: summary, cost: cost}, nil
}

func summarize(outcomes []Outcome) (Summary, error) {
	data := make(stats.Float64Data, len(outcomes))
	var wins, losses stats.Float64Data
	for i, o := range outcomes {
		data[i] = o.PnL
		switch {
		case o.PnL > 0:
			wins = append(wins, o.PnL)
		case o.PnL < 0:
			losses = append(losses, -o.PnL)
		}
	}

	s := Summary{Count: len(data), Wins: len(wins)}
	if s.Count == 0 {
		return s, fmt.Errorf("empty scenario grid: %w", models.ErrComputation)
	}

	var err error
	steps := []struct {
		dst *float64
		fn  func() (float64, error)
	}{
		{&s.Max, data.Max},
		{&s.Min, data.Min},
		{&s.Mean, data.Mean},
		{&s.Median, data.Median},
		{&s.StdDev, func() (float64, error) {
			if len(data) < 2 {
				return 0, nil
			}
			return data.StandardDeviationSample()
		}},
		{&s.P5, func() (float64, error) { return percentile(data, 5) }},
		{&s.P25, func() (float64, error) { return percentile(data, 25) }},
		{&s.P75, func() (float64, error) { return percentile(data, 75) }},
		{&s.P95, func() (float64, error) { return percentile(data, 95) }},
	}
	for _, st := range steps {
		if *st.dst, err = st.fn(); err != nil {
			return s, fmt.Errorf("grid statistics: %v: %w", err, models.ErrComputation)
		}
	}

	s.WinRate = float64(len(wins)) / float64(s.Count)
	if len(wins) > 0 {
		s.AvgWin, _ = wins.Mean()
	}
	if len(losses) > 0 {
		s.AvgLoss, _ = losses.Mean()
	}
	return s, nil
}

// percentile interpolates like stats.Percentile and falls back to the
// nearest rank on small grids, where the interpolated index drops below one.
func percentile(data stats.Float64Data, pct float64) (float64, error) {
	if v, err := data.Percentile(pct); err == nil {
		return v, nil
	}
	return data.PercentileNearestRank(pct)
}
