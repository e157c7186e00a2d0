package analyzer

import (
	"time"

	"github.com/eddiefleurent/ivcrush/internal/decision"
	"github.com/eddiefleurent/ivcrush/internal/greeks"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pnl"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/eddiefleurent/ivcrush/internal/signals"
	"github.com/eddiefleurent/ivcrush/internal/sizing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
)

// AnalysisResult is the complete output of one analysis. Every stage key is
// always present; a stage that could not run carries only its error.
type AnalysisResult struct {
	Timestamp              time.Time         `json:"timestamp"`
	RequestID              string            `json:"request_id"`
	Overview               Overview          `json:"overview"`
	CalendarSpreadAnalysis SignalStage       `json:"calendar_spread_analysis"`
	TradeConstruction      TradeStage        `json:"trade_construction"`
	PnLAnalysis            PnLStage          `json:"pnl_analysis"`
	PositionSizing         SizingStage       `json:"position_sizing"`
	RiskAssessment         RiskStage         `json:"risk_assessment"`
	TradingDecision        decision.Decision `json:"trading_decision"`
}

// Overview echoes the request.
type Overview struct {
	AsOf            time.Time             `json:"as_of"`
	EarningsDate    *time.Time            `json:"earnings_date,omitempty"`
	Earnings        *models.EarningsEvent `json:"earnings,omitempty"`
	Symbol          string                `json:"symbol"`
	Notes           []string              `json:"notes,omitempty"`
	UnderlyingPrice float64               `json:"price"`
	AvgVolume       float64               `json:"avg_volume"`
	RealizedVol     float64               `json:"realized_volatility"`
	Expirations     int                   `json:"expirations"`
	// ExpectedMovePct is the nearest straddle as a percent of price. It is
	// reported even when the signal stage is unavailable.
	ExpectedMovePct *float64              `json:"expected_move_pct,omitempty"`
}

// SignalStage is the signal breakdown or the reason it is missing.
type SignalStage struct {
	*signals.Result
	Error string `json:"error,omitempty"`
}

// TradeStage is the constructed trades with their greeks.
type TradeStage struct {
	Selection      *trade.Selection     `json:"selection,omitempty"`
	Calendar       *trade.CalendarTrade `json:"calendar,omitempty"`
	Greeks         *greeks.Spread       `json:"greeks,omitempty"`
	Straddle       *trade.StraddleTrade `json:"straddle,omitempty"`
	StraddleGreeks *greeks.Spread       `json:"straddle_greeks,omitempty"`
	StraddleError  string               `json:"straddle_error,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// GridReport is one simulated grid.
type GridReport struct {
	Scenarios []pnl.Outcome `json:"scenarios"`
	Summary   pnl.Summary   `json:"summary"`
	EntryCost float64       `json:"entry_cost"`
}

func reportGrid(g *pnl.Grid) *GridReport {
	return &GridReport{Scenarios: g.Outcomes(), Summary: g.Summary(), EntryCost: g.EntryCost()}
}

// PnLStage holds the scenario grids.
type PnLStage struct {
	Parameters    *pnl.IVCrushParameters `json:"iv_crush_parameters,omitempty"`
	Calendar      *GridReport            `json:"calendar,omitempty"`
	Straddle      *GridReport            `json:"straddle,omitempty"`
	StraddleError string                 `json:"straddle_error,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// SizingStage holds the Kelly inputs and the resulting size.
type SizingStage struct {
	Kelly *sizing.KellyParameters `json:"kelly,omitempty"`
	Size  *sizing.PositionSize    `json:"position_size,omitempty"`
	Error string                  `json:"error,omitempty"`
}

// RiskStage holds the advisory assessment of the sized candidate.
type RiskStage struct {
	Assessment *risk.Assessment `json:"assessment,omitempty"`
	Candidate  *models.Position `json:"candidate,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Actionable reports whether the decision favors entering the trade.
func (r *AnalysisResult) Actionable() bool {
	switch r.TradingDecision.Decision {
	case decision.StateRecommended, decision.StateExecute:
		return true
	default:
		return false
	}
}

// Candidate returns the sized position the risk stage assessed, if any.
func (r *AnalysisResult) Candidate() (*models.Position, bool) {
	if r.RiskAssessment.Candidate == nil {
		return nil, false
	}
	c := *r.RiskAssessment.Candidate
	return &c, true
}

// Errors lists the stage errors by stage name.
func (r *AnalysisResult) Errors() map[string]string {
	out := map[string]string{}
	for stage, msg := range map[string]string{
		StageSignals: r.CalendarSpreadAnalysis.Error,
		StageTrade:   r.TradeConstruction.Error,
		StagePnL:     r.PnLAnalysis.Error,
		StageSizing:  r.PositionSizing.Error,
		StageRisk:    r.RiskAssessment.Error,
	} {
		if msg != "" {
			out[stage] = msg
		}
	}
	return out
}
