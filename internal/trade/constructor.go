package trade

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/util"
)

// Config controls expiration selection and leg construction.
type Config struct {
	Limits            Limits
	OptionType        models.OptionType
	BackTargetGapDays int
	RiskFreeRate      float64
	IncludeStraddle   bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Limits:            DefaultLimits(),
		OptionType:        models.OptionTypeCall,
		BackTargetGapDays: 30,
		RiskFreeRate:      0.05,
		IncludeStraddle:   true,
	}
}

// Request is one snapshot of a symbol's option market.
type Request struct {
	AsOf            time.Time
	EarningsDate    *time.Time
	Symbol          string
	Summaries       []models.ChainSummary
	Chains          []models.OptionChain
	UnderlyingPrice float64
}

// Selection is the chosen strike and expiration pair.
type Selection struct {
	Front  models.ChainSummary `json:"front"`
	Back   models.ChainSummary `json:"back"`
	Strike float64             `json:"strike"`
	// StrikeFromChain is false when the strike was rounded from spot because
	// the front expiration had no usable summary strike.
	StrikeFromChain bool `json:"strike_from_chain"`
}

// Result bundles what the constructor built.
type Result struct {
	Calendar  *CalendarTrade `json:"calendar"`
	Straddle  *StraddleTrade `json:"straddle,omitempty"`
	Selection Selection      `json:"selection"`
	// StraddleError explains a missing straddle when one was requested.
	StraddleError string `json:"straddle_error,omitempty"`
}

// Constructor selects expirations and a strike and builds the trades.
type Constructor struct {
	vm     pricing.VolatilityMath
	logger *logrus.Logger
	cfg    Config
}

// NewConstructor creates a constructor. A nil vm defaults to Black-Scholes.
func NewConstructor(cfg Config, vm pricing.VolatilityMath, logger *logrus.Logger) *Constructor {
	if vm == nil {
		vm = pricing.BlackScholes{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if !cfg.OptionType.Valid() {
		cfg.OptionType = models.OptionTypeCall
	}
	if cfg.BackTargetGapDays <= 0 {
		cfg.BackTargetGapDays = DefaultConfig().BackTargetGapDays
	}
	return &Constructor{cfg: cfg, vm: vm, logger: logger}
}

// SelectExpirations picks the front expiration (earliest on or after the
// earnings date, or the first one) and the back expiration whose DTE is
// closest to front DTE plus the target gap. Only future expirations count.
func (c *Constructor) SelectExpirations(summaries []models.ChainSummary, asOf time.Time,
	earnings *time.Time) (front, back models.ChainSummary, err error) {
	future := make([]models.ChainSummary, 0, len(summaries))
	for _, s := range summaries {
		if models.DaysUntil(asOf, s.Expiration) > 0 {
			future = append(future, s)
		}
	}
	sort.Slice(future, func(i, j int) bool { return future[i].Expiration.Before(future[j].Expiration) })
	if len(future) < 2 {
		return front, back, fmt.Errorf("need 2 future expirations, have %d: %w", len(future), models.ErrInsufficientData)
	}

	frontIdx := 0
	if earnings != nil {
		frontIdx = -1
		for i, s := range future {
			if models.DaysUntil(*earnings, s.Expiration) >= 0 {
				frontIdx = i
				break
			}
		}
		if frontIdx < 0 {
			return front, back, fmt.Errorf("no expiration on or after earnings %s: %w",
				earnings.Format("2006-01-02"), models.ErrInsufficientData)
		}
	}
	front = future[frontIdx]
	if frontIdx == len(future)-1 {
		return front, back, fmt.Errorf("no expiration after front %s: %w",
			front.Expiration.Format("2006-01-02"), models.ErrInsufficientData)
	}

	target := models.DaysUntil(asOf, front.Expiration) + c.cfg.BackTargetGapDays
	bestDiff := math.MaxInt
	for _, s := range future[frontIdx+1:] {
		diff := models.DaysUntil(asOf, s.Expiration) - target
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff, back = diff, s
		}
	}
	return front, back, nil
}

// SelectStrike returns the front summary ATM strike, or spot rounded to the
// assumed listing increment when the summary has none.
func (c *Constructor) SelectStrike(front models.ChainSummary, underlying float64) (float64, bool) {
	if front.ATMStrike > 0 {
		return front.ATMStrike, true
	}
	return util.NearestStrike(underlying), false
}

func findChain(chains []models.OptionChain, exp time.Time) (models.OptionChain, bool) {
	for _, ch := range chains {
		if models.DaysUntil(ch.Expiration, exp) == 0 {
			return ch, true
		}
	}
	return models.OptionChain{}, false
}

func (c *Constructor) lookup(chains []models.OptionChain, exp time.Time, strike float64,
	t models.OptionType) (models.OptionQuote, error) {
	ch, ok := findChain(chains, exp)
	if !ok {
		return models.OptionQuote{}, fmt.Errorf("no option chain for %s: %w",
			exp.Format("2006-01-02"), models.ErrInsufficientData)
	}
	q, ok := ch.Find(strike, t)
	if !ok {
		return models.OptionQuote{}, fmt.Errorf("no %s at strike %.2f for %s: %w",
			t, strike, exp.Format("2006-01-02"), models.ErrInsufficientData)
	}
	if q.Expiration.IsZero() {
		q.Expiration = ch.Expiration
	}
	return q, nil
}

// Build selects the legs and constructs the calendar (and optionally the
// straddle). Missing data is an error; infeasible trades are not.
func (c *Constructor) Build(req Request) (*Result, error) {
	if req.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("underlying price must be positive (got %.2f): %w",
			req.UnderlyingPrice, models.ErrInsufficientData)
	}
	front, back, err := c.SelectExpirations(req.Summaries, req.AsOf, req.EarningsDate)
	if err != nil {
		return nil, err
	}
	strike, fromChain := c.SelectStrike(front, req.UnderlyingPrice)

	frontQuote, err := c.lookup(req.Chains, front.Expiration, strike, c.cfg.OptionType)
	if err != nil {
		return nil, fmt.Errorf("front leg: %w", err)
	}
	backQuote, err := c.lookup(req.Chains, back.Expiration, strike, c.cfg.OptionType)
	if err != nil {
		return nil, fmt.Errorf("back leg: %w", err)
	}

	res := &Result{
		Selection: Selection{Front: front, Back: back, Strike: strike, StrikeFromChain: fromChain},
		Calendar: NewCalendarTrade(req.Symbol, req.UnderlyingPrice, frontQuote, backQuote,
			req.AsOf, c.cfg.RiskFreeRate, c.cfg.Limits, c.vm),
	}

	if c.cfg.IncludeStraddle {
		res.Straddle, err = c.buildStraddle(req, front.Expiration, strike)
		if err != nil {
			res.StraddleError = err.Error()
		}
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":    req.Symbol,
		"strike":    strike,
		"front_dte": res.Calendar.FrontDTE(),
		"back_dte":  res.Calendar.BackDTE(),
		"net_debit": res.Calendar.NetDebit(),
		"valid":     res.Calendar.IsValid(),
	}).Debug("calendar constructed")
	return res, nil
}

func (c *Constructor) buildStraddle(req Request, exp time.Time, strike float64) (*StraddleTrade, error) {
	call, err := c.lookup(req.Chains, exp, strike, models.OptionTypeCall)
	if err != nil {
		return nil, err
	}
	put, err := c.lookup(req.Chains, exp, strike, models.OptionTypePut)
	if err != nil {
		return nil, err
	}
	return NewStraddleTrade(req.Symbol, req.UnderlyingPrice, call, put, req.AsOf, c.cfg.Limits), nil
}
