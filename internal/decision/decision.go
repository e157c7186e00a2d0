// Package decision turns the pipeline's stage outputs into a final trade
// decision under one of three frameworks.
package decision

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pnl"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/eddiefleurent/ivcrush/internal/signals"
	"github.com/eddiefleurent/ivcrush/internal/sizing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
)

// Framework selects the decision strategy.
type Framework string

// Frameworks.
const (
	FrameworkOriginal Framework = "original"
	FrameworkEnhanced Framework = "enhanced"
	FrameworkHybrid   Framework = "hybrid"
)

// Valid returns true if f is one of the defined frameworks.
func (f Framework) Valid() bool {
	switch f {
	case FrameworkOriginal, FrameworkEnhanced, FrameworkHybrid:
		return true
	default:
		return false
	}
}

// ParseFramework accepts a framework name in any case.
func ParseFramework(s string) (Framework, error) {
	f := Framework(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown decision framework %q: %w", s, models.ErrConfiguration)
	}
	return f, nil
}

// Stage names used in Input.Unavailable.
const (
	StageSignals = "calendar_spread_analysis"
	StageTrade   = "trade_construction"
	StagePnL     = "pnl_analysis"
	StageSizing  = "position_sizing"
	StageRisk    = "risk_assessment"
)

// Input is everything the pipeline produced before the decision. Nil stage
// outputs are missing prerequisites; Unavailable carries the reason a stage
// failed, keyed by stage name.
type Input struct {
	AsOf         time.Time
	EarningsDate *time.Time
	Signals      *signals.Result
	Calendar     *trade.CalendarTrade
	PnL          *pnl.Summary
	Size         *sizing.PositionSize
	Risk         *risk.Assessment
	Unavailable  map[string]string
	Liquidity    pnl.LiquidityTier
}

func (in Input) missing(stage string) string {
	if msg := in.Unavailable[stage]; msg != "" {
		return fmt.Sprintf("%s unavailable: %s", stage, msg)
	}
	return stage + " unavailable"
}

// Decision is the immutable outcome of one Decide call.
type Decision struct {
	DecidedAt       time.Time          `json:"decided_at"`
	Secondary       *Decision          `json:"secondary,omitempty"`
	Components      map[string]float64 `json:"score_components,omitempty"`
	SignalBreakdown map[string]bool    `json:"signal_breakdown,omitempty"`
	Score           *float64           `json:"score,omitempty"`
	Framework       Framework          `json:"framework"`
	Decision        State              `json:"decision"`
	Condition       string             `json:"condition"`
	Reasoning       []string           `json:"reasoning"`
	Confidence      float64            `json:"confidence"`
	SignalCount     int                `json:"signal_count"`
}

// Strategy decides one analysis.
type Strategy interface {
	Framework() Framework
	Decide(in Input) Decision
}

// Config selects and tunes the strategy.
type Config struct {
	Framework Framework
	Enhanced  EnhancedConfig
}

// DefaultConfig returns the original framework with default enhanced tuning.
func DefaultConfig() Config {
	return Config{Framework: FrameworkOriginal, Enhanced: DefaultEnhancedConfig()}
}

// New builds the strategy named by cfg.Framework once, at construction.
func New(cfg Config, logger *logrus.Logger) (Strategy, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	switch cfg.Framework {
	case FrameworkOriginal, "":
		return NewOriginal(logger), nil
	case FrameworkEnhanced:
		return NewEnhanced(cfg.Enhanced, logger), nil
	case FrameworkHybrid:
		return NewHybrid(NewOriginal(logger), NewEnhanced(cfg.Enhanced, logger)), nil
	default:
		return nil, fmt.Errorf("unknown decision framework %q: %w", cfg.Framework, models.ErrConfiguration)
	}
}

func breakdown(r *signals.Result) map[string]bool {
	return map[string]bool{
		"ts_slope": r.TSSlopeSignal,
		"iv_rv":    r.IVRVSignal,
		"volume":   r.VolumeSignal,
	}
}

// conclude takes the single transition of sm. The tables cover every branch
// the strategies take, so a rejection is logged and the machine left as is.
func conclude(sm *StateMachine, to State, condition string, logger *logrus.Logger) {
	if err := sm.Transition(to, condition); err != nil {
		logger.WithError(err).Error("decision transition rejected")
	}
}
