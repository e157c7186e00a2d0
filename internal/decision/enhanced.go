package decision

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/pnl"
)

// Weights are the enhanced framework's criterion weights. They are
// normalized to sum to 1.
type Weights struct {
	SignalStrength float64 `yaml:"signal_strength" json:"signal_strength"`
	RiskReward     float64 `yaml:"risk_reward" json:"risk_reward"`
	WinRate        float64 `yaml:"win_rate" json:"win_rate"`
	Liquidity      float64 `yaml:"liquidity" json:"liquidity"`
	PositionSize   float64 `yaml:"position_size" json:"position_size"`
	Timing         float64 `yaml:"timing" json:"timing"`
}

// DefaultWeights returns the documented weights.
func DefaultWeights() Weights {
	return Weights{
		SignalStrength: 0.30,
		RiskReward:     0.20,
		WinRate:        0.20,
		Liquidity:      0.10,
		PositionSize:   0.10,
		Timing:         0.10,
	}
}

func (w Weights) sum() float64 {
	return w.SignalStrength + w.RiskReward + w.WinRate + w.Liquidity + w.PositionSize + w.Timing
}

// Normalized scales w to sum to 1. Negative weights or a zero total fall back
// to the defaults.
func (w Weights) Normalized() Weights {
	for _, v := range []float64{w.SignalStrength, w.RiskReward, w.WinRate, w.Liquidity, w.PositionSize, w.Timing} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return DefaultWeights()
		}
	}
	s := w.sum()
	if s <= 0 {
		return DefaultWeights()
	}
	return Weights{
		SignalStrength: w.SignalStrength / s,
		RiskReward:     w.RiskReward / s,
		WinRate:        w.WinRate / s,
		Liquidity:      w.Liquidity / s,
		PositionSize:   w.PositionSize / s,
		Timing:         w.Timing / s,
	}
}

// EnhancedConfig tunes the weighted framework.
type EnhancedConfig struct {
	Weights           Weights
	MinWinRate        float64
	TargetWinRate     float64
	MinRiskReward     float64
	TargetRiskReward  float64
	ExecuteScore      float64
	MinExecuteSignals int
}

// DefaultEnhancedConfig returns the documented defaults.
func DefaultEnhancedConfig() EnhancedConfig {
	return EnhancedConfig{
		Weights:           DefaultWeights(),
		MinWinRate:        0.35,
		TargetWinRate:     0.70,
		MinRiskReward:     0.50,
		TargetRiskReward:  2.00,
		ExecuteScore:      0.70,
		MinExecuteSignals: 2,
	}
}

func (c EnhancedConfig) normalize() EnhancedConfig {
	def := DefaultEnhancedConfig()
	c.Weights = c.Weights.Normalized()
	if c.MinWinRate < 0 || c.MinWinRate >= 1 {
		c.MinWinRate = def.MinWinRate
	}
	if c.TargetWinRate <= c.MinWinRate || c.TargetWinRate > 1 {
		c.TargetWinRate = math.Max(def.TargetWinRate, c.MinWinRate+0.01)
	}
	if c.MinRiskReward < 0 {
		c.MinRiskReward = def.MinRiskReward
	}
	if c.TargetRiskReward <= 0 {
		c.TargetRiskReward = def.TargetRiskReward
	}
	if c.ExecuteScore <= 0 || c.ExecuteScore > 1 {
		c.ExecuteScore = def.ExecuteScore
	}
	if c.MinExecuteSignals < 1 || c.MinExecuteSignals > 3 {
		c.MinExecuteSignals = def.MinExecuteSignals
	}
	return c
}

// Score component keys.
const (
	ComponentSignalStrength = "signal_strength"
	ComponentRiskReward     = "risk_reward"
	ComponentWinRate        = "win_rate"
	ComponentLiquidity      = "liquidity"
	ComponentPositionSize   = "position_size"
	ComponentTiming         = "timing"
)

// Enhanced scores six criteria and decides EXECUTE, PASS or CONSIDER.
// Disqualifiers are checked first, then the execution criteria.
type Enhanced struct {
	logger *logrus.Logger
	cfg    EnhancedConfig
}

// NewEnhanced creates the weighted strategy.
func NewEnhanced(cfg EnhancedConfig, logger *logrus.Logger) *Enhanced {
	return &Enhanced{cfg: cfg.normalize(), logger: logger}
}

// Framework implements Strategy.
func (e *Enhanced) Framework() Framework { return FrameworkEnhanced }

// Config returns the normalized configuration.
func (e *Enhanced) Config() EnhancedConfig { return e.cfg }

// Decide implements Strategy.
func (e *Enhanced) Decide(in Input) Decision {
	sm := NewStateMachine(EnhancedTransitions)
	d := Decision{Framework: FrameworkEnhanced}

	if missing := e.prerequisites(in); len(missing) > 0 {
		conclude(sm, StatePass, CondMissingPrerequisite, e.logger)
		d.Reasoning = missing
		if in.Signals != nil {
			d.SignalCount = in.Signals.SignalCount
			d.SignalBreakdown = breakdown(in.Signals)
		}
		zero := 0.0
		d.Score = &zero
		return e.finish(sm, d)
	}

	d.SignalCount = in.Signals.SignalCount
	d.SignalBreakdown = breakdown(in.Signals)
	d.Components = e.components(in)
	score := e.weigh(d.Components)
	d.Score = &score

	rr := riskReward(*in.PnL)
	var disqualifiers []string
	if !in.Calendar.IsValid() {
		disqualifiers = append(disqualifiers, "trade failed validation: "+strings.Join(in.Calendar.ValidationErrors(), "; "))
	}
	if !in.Size.IsValid() {
		disqualifiers = append(disqualifiers, "position size invalid: "+strings.Join(in.Size.ValidationErrors(), "; "))
	}
	if d.SignalCount == 0 {
		disqualifiers = append(disqualifiers, "no signals present")
	}
	if in.PnL.WinRate < e.cfg.MinWinRate {
		disqualifiers = append(disqualifiers, fmt.Sprintf("win rate %.0f%% below minimum %.0f%%",
			in.PnL.WinRate*100, e.cfg.MinWinRate*100))
	}
	if rr < e.cfg.MinRiskReward {
		disqualifiers = append(disqualifiers, fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, e.cfg.MinRiskReward))
	}

	switch {
	case len(disqualifiers) > 0:
		conclude(sm, StatePass, CondDisqualified, e.logger)
		d.Reasoning = disqualifiers
	case d.SignalCount >= e.cfg.MinExecuteSignals && score >= e.cfg.ExecuteScore && in.Risk.IsCompliant:
		conclude(sm, StateExecute, CondCriteriaMet, e.logger)
		d.Reasoning = []string{fmt.Sprintf("score %.2f with %d signals within risk limits", score, d.SignalCount)}
	default:
		conclude(sm, StateConsider, CondMixedCriteria, e.logger)
		d.Reasoning = e.shortfalls(d.SignalCount, score, in)
	}
	return e.finish(sm, d)
}

// prerequisites lists the stages the enhanced framework needs but lacks.
func (e *Enhanced) prerequisites(in Input) []string {
	var missing []string
	if in.Signals == nil {
		missing = append(missing, in.missing(StageSignals))
	}
	if in.Calendar == nil {
		missing = append(missing, in.missing(StageTrade))
	}
	if in.PnL == nil {
		missing = append(missing, in.missing(StagePnL))
	}
	if in.Size == nil {
		missing = append(missing, in.missing(StageSizing))
	}
	if in.Risk == nil {
		missing = append(missing, in.missing(StageRisk))
	}
	return missing
}

func (e *Enhanced) shortfalls(count int, score float64, in Input) []string {
	var out []string
	if count < e.cfg.MinExecuteSignals {
		out = append(out, fmt.Sprintf("%d signals, %d needed to execute", count, e.cfg.MinExecuteSignals))
	}
	if score < e.cfg.ExecuteScore {
		out = append(out, fmt.Sprintf("score %.2f below execution threshold %.2f", score, e.cfg.ExecuteScore))
	}
	if !in.Risk.IsCompliant {
		out = append(out, "risk limits exceeded: "+strings.Join(in.Risk.Violations, "; "))
	}
	return out
}

// components scores each criterion in [0, 1].
func (e *Enhanced) components(in Input) map[string]float64 {
	size := 0.0
	if in.Size.IsValid() && in.Size.Contracts() > 0 {
		size = 1
		if !in.Risk.IsCompliant {
			size = 0.5
		}
	}
	winRate := (in.PnL.WinRate - e.cfg.MinWinRate) / (e.cfg.TargetWinRate - e.cfg.MinWinRate)
	return map[string]float64{
		ComponentSignalStrength: float64(in.Signals.SignalCount) / 3,
		ComponentRiskReward:     clamp01(riskReward(*in.PnL) / e.cfg.TargetRiskReward),
		ComponentWinRate:        clamp01(winRate),
		ComponentLiquidity:      liquidityScore(in.Liquidity),
		ComponentPositionSize:   size,
		ComponentTiming:         timingScore(in),
	}
}

func (e *Enhanced) weigh(c map[string]float64) float64 {
	w := e.cfg.Weights
	return w.SignalStrength*c[ComponentSignalStrength] +
		w.RiskReward*c[ComponentRiskReward] +
		w.WinRate*c[ComponentWinRate] +
		w.Liquidity*c[ComponentLiquidity] +
		w.PositionSize*c[ComponentPositionSize] +
		w.Timing*c[ComponentTiming]
}

func (e *Enhanced) finish(sm *StateMachine, d Decision) Decision {
	d.Decision = sm.GetCurrentState()
	d.Condition = sm.Condition()
	d.DecidedAt = sm.TransitionTime()
	if d.Score != nil {
		d.Confidence = *d.Score
	}
	e.logger.WithFields(logrus.Fields{
		"framework":  d.Framework,
		"decision":   d.Decision,
		"condition":  d.Condition,
		"confidence": d.Confidence,
	}).Debug("decision reached")
	return d
}

// riskReward is the average win over the average loss of the P&L grid. A
// grid with no losing outcome has unbounded reward.
func riskReward(s pnl.Summary) float64 {
	switch {
	case s.AvgLoss > 0:
		return s.AvgWin / s.AvgLoss
	case s.AvgWin > 0:
		return math.Inf(1)
	default:
		return 0
	}
}

func liquidityScore(t pnl.LiquidityTier) float64 {
	switch t {
	case pnl.TierHigh:
		return 1
	case pnl.TierMedium:
		return 0.7
	case pnl.TierLow:
		return 0.3
	default:
		return 0.5
	}
}

// timingScore rewards an earnings event inside the next week. Unknown dates
// score neutral; past events score zero.
func timingScore(in Input) float64 {
	if in.EarningsDate == nil || in.AsOf.IsZero() {
		return 0.5
	}
	asOf := in.AsOf.UTC().Truncate(24 * time.Hour)
	event := in.EarningsDate.UTC().Truncate(24 * time.Hour)
	days := int(event.Sub(asOf).Hours() / 24)
	switch {
	case days < 0:
		return 0
	case days == 0:
		return 0.8
	case days <= 7:
		return 1
	case days <= 14:
		return 0.6
	default:
		return 0.3
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
