// Package analyzer runs the full earnings IV-crush pipeline for one symbol:
// signals, trade construction, greeks, P&L grid, sizing, risk and decision.
// A failing stage attaches an error to its own section of the result and the
// remaining stages carry on.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/ivcrush/internal/decision"
	"github.com/eddiefleurent/ivcrush/internal/greeks"
	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pnl"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/eddiefleurent/ivcrush/internal/signals"
	"github.com/eddiefleurent/ivcrush/internal/sizing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
	"github.com/eddiefleurent/ivcrush/internal/util"
	"github.com/eddiefleurent/ivcrush/internal/volatility"
)

// Stage names, shared with the decision inputs and metrics labels.
const (
	StageSignals  = decision.StageSignals
	StageTrade    = decision.StageTrade
	StageGreeks   = "greeks"
	StagePnL      = decision.StagePnL
	StageSizing   = decision.StageSizing
	StageRisk     = decision.StageRisk
	StageDecision = "trading_decision"
)

// Config gathers the settings of every stage.
type Config struct {
	Thresholds       signals.Thresholds
	StrictThresholds bool
	Trade            trade.Config
	PnL              pnl.Config
	Sizing           sizing.Config
	Decision         decision.Config
	// BatchConcurrency bounds AnalyzeBatch fan-out.
	BatchConcurrency int
}

// DefaultConfig returns every stage's defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:       signals.DefaultThresholds(),
		Trade:            trade.DefaultConfig(),
		PnL:              pnl.DefaultConfig(),
		Sizing:           sizing.DefaultConfig(),
		Decision:         decision.DefaultConfig(),
		BatchConcurrency: 4,
	}
}

// Request is one symbol's market snapshot. Summaries are required; the rest
// is optional and its absence degrades the stages that need it.
type Request struct {
	AsOf            time.Time             `json:"as_of"`
	EarningsDate    *time.Time            `json:"earnings_date,omitempty"`
	Earnings        *models.EarningsEvent `json:"earnings,omitempty"`
	Symbol          string                `json:"symbol"`
	Sector          string                `json:"sector,omitempty"`
	Summaries       []models.ChainSummary `json:"option_chain_summaries"`
	Chains          []models.OptionChain  `json:"option_chains,omitempty"`
	History         []models.OHLCBar      `json:"price_history,omitempty"`
	UnderlyingPrice float64               `json:"price"`
	// AvgVolume overrides the 30-day average computed from History.
	AvgVolume float64 `json:"avg_volume,omitempty"`
	// AccountSize overrides the configured account for sizing.
	AccountSize float64 `json:"account_size,omitempty"`
}

// Analyzer is built once and shared; Analyze is safe for concurrent use.
type Analyzer struct {
	cfg         Config
	evaluator   *signals.Evaluator
	rv          volatility.YangZhang
	constructor *trade.Constructor
	greeks      *greeks.Calculator
	pnl         *pnl.Engine
	sizer       *sizing.Sizer
	risk        *risk.Engine
	strategy    decision.Strategy
	metrics     *metrics.Registry
	logger      *logrus.Logger
	now         func() time.Time
}

// New wires the stages. riskEngine and reg may be nil: without a risk engine
// the risk stage reports an error, without a registry nothing is recorded.
func New(cfg Config, riskEngine *risk.Engine, reg *metrics.Registry, logger *logrus.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	strategy, err := decision.New(cfg.Decision, logger)
	if err != nil {
		return nil, err
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultConfig().BatchConcurrency
	}
	vm := pricing.BlackScholes{}
	return &Analyzer{
		cfg:         cfg,
		evaluator:   signals.NewEvaluator(cfg.Thresholds, cfg.StrictThresholds, logger),
		rv:          volatility.NewYangZhang(),
		constructor: trade.NewConstructor(cfg.Trade, vm, logger),
		greeks:      greeks.NewCalculator(vm, cfg.Trade.RiskFreeRate, logger),
		pnl:         pnl.NewEngine(cfg.PnL, vm, logger),
		sizer:       sizing.NewSizer(cfg.Sizing, logger),
		risk:        riskEngine,
		strategy:    strategy,
		metrics:     reg,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Framework returns the decision framework in use.
func (a *Analyzer) Framework() decision.Framework { return a.strategy.Framework() }

// Analyze runs the pipeline. It never fails: every problem is reported in
// the stage it occurred in.
func (a *Analyzer) Analyze(ctx context.Context, req Request) *AnalysisResult {
	defer a.metrics.AnalysisStarted()()

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.AsOf.IsZero() {
		req.AsOf = a.now().UTC()
	}
	if req.EarningsDate == nil && req.Earnings != nil {
		d := req.Earnings.Date
		req.EarningsDate = &d
	}

	res := &AnalysisResult{
		RequestID: uuid.NewString(),
		Timestamp: a.now().UTC(),
	}
	log := a.logger.WithFields(logrus.Fields{"symbol": req.Symbol, "request_id": res.RequestID})

	summaries := futureSummaries(req.Summaries, req.AsOf)
	avgVolume := req.AvgVolume
	if avgVolume <= 0 {
		avgVolume = volatility.AverageVolume(req.History, volatility.DefaultWindow)
	}
	realized, rvOK := a.rv.Estimate(req.History)
	res.Overview = Overview{
		Symbol:          req.Symbol,
		UnderlyingPrice: req.UnderlyingPrice,
		AsOf:            req.AsOf,
		EarningsDate:    req.EarningsDate,
		Earnings:        req.Earnings,
		Expirations:     len(summaries),
		AvgVolume:       avgVolume,
		RealizedVol:     realized,
	}
	if len(summaries) > 0 && summaries[0].StraddleMid > 0 && req.UnderlyingPrice > 0 {
		move := util.PercentOf(summaries[0].StraddleMid, req.UnderlyingPrice)
		res.Overview.ExpectedMovePct = &move
	}
	if !rvOK {
		res.Overview.Notes = append(res.Overview.Notes, "price history insufficient for realized volatility")
	}

	in := decision.Input{
		AsOf:         req.AsOf,
		EarningsDate: req.EarningsDate,
		Liquidity:    pnl.CrushParametersForVolume(avgVolume).Tier,
		Unavailable:  map[string]string{},
	}
	fail := func(stage string, err error) string {
		in.Unavailable[stage] = err.Error()
		log.WithError(err).WithField("stage", stage).Debug("stage unavailable")
		return err.Error()
	}

	// Signals
	timer := a.metrics.StartStage(StageSignals)
	sig, err := a.signals(ctx, req, summaries, realized, avgVolume)
	timer.Stop(err)
	if err != nil {
		res.CalendarSpreadAnalysis.Error = fail(StageSignals, err)
	} else {
		res.CalendarSpreadAnalysis.Result = sig
		in.Signals = sig
	}

	// Trade construction and greeks
	timer = a.metrics.StartStage(StageTrade)
	built, err := a.buildTrade(ctx, req, summaries)
	timer.Stop(err)
	if err != nil {
		res.TradeConstruction.Error = fail(StageTrade, err)
	} else {
		res.TradeConstruction.Selection = &built.Selection
		res.TradeConstruction.Calendar = built.Calendar
		res.TradeConstruction.Straddle = built.Straddle
		res.TradeConstruction.StraddleError = built.StraddleError
		in.Calendar = built.Calendar

		timer = a.metrics.StartStage(StageGreeks)
		g := a.greeks.Calendar(built.Calendar)
		res.TradeConstruction.Greeks = &g
		if built.Straddle != nil {
			sg := a.greeks.Straddle(built.Straddle, req.UnderlyingPrice, req.AsOf)
			res.TradeConstruction.StraddleGreeks = &sg
		}
		timer.Stop(nil)
	}

	// P&L grid
	timer = a.metrics.StartStage(StagePnL)
	err = a.simulate(ctx, req, avgVolume, built, &res.PnLAnalysis)
	timer.Stop(err)
	if err != nil {
		res.PnLAnalysis.Error = fail(StagePnL, err)
	} else {
		s := res.PnLAnalysis.Calendar.Summary
		in.PnL = &s
	}

	// Sizing
	timer = a.metrics.StartStage(StageSizing)
	err = a.size(ctx, req, in, &res.PositionSizing)
	timer.Stop(err)
	if err != nil {
		res.PositionSizing.Error = fail(StageSizing, err)
	} else {
		in.Size = res.PositionSizing.Size
	}

	// Risk
	timer = a.metrics.StartStage(StageRisk)
	err = a.assess(ctx, req, in, res.TradeConstruction.Greeks, &res.RiskAssessment)
	timer.Stop(err)
	if err != nil {
		res.RiskAssessment.Error = fail(StageRisk, err)
	} else {
		in.Risk = res.RiskAssessment.Assessment
	}

	// Decision
	timer = a.metrics.StartStage(StageDecision)
	res.TradingDecision = a.strategy.Decide(in)
	timer.Stop(nil)
	a.metrics.RecordDecision(string(res.TradingDecision.Framework), string(res.TradingDecision.Decision))

	log.WithFields(logrus.Fields{
		"decision":     res.TradingDecision.Decision,
		"confidence":   res.TradingDecision.Confidence,
		"signal_count": res.TradingDecision.SignalCount,
		"degraded":     len(in.Unavailable),
	}).Info("analysis complete")
	return res
}

// AnalyzeBatch analyzes each request concurrently, bounded by the configured
// concurrency. Results keep the order of reqs.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, reqs []Request) []*AnalysisResult {
	results := make([]*AnalysisResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.BatchConcurrency)
	for i := range reqs {
		g.Go(func() error {
			results[i] = a.Analyze(gctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// futureSummaries drops expired and IV-less expirations and sorts the rest.
func futureSummaries(in []models.ChainSummary, asOf time.Time) []models.ChainSummary {
	out := make([]models.ChainSummary, 0, len(in))
	for _, s := range in {
		if models.DaysUntil(asOf, s.Expiration) > 0 && s.ATMIV > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiration.Before(out[j].Expiration) })
	return out
}

func (a *Analyzer) signals(ctx context.Context, req Request, summaries []models.ChainSummary,
	realized, avgVolume float64) (*signals.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("underlying price must be positive: %w", models.ErrInsufficientData)
	}
	ts, err := volatility.FromSummaries(summaries, req.AsOf)
	if err != nil {
		return nil, err
	}
	var straddleMid float64
	if len(summaries) > 0 {
		straddleMid = summaries[0].StraddleMid
	}
	return a.evaluator.Evaluate(signals.Input{
		Term:            ts,
		UnderlyingPrice: req.UnderlyingPrice,
		StraddleMid:     straddleMid,
		RealizedVol:     realized,
		AvgVolume:       avgVolume,
	})
}

func (a *Analyzer) buildTrade(ctx context.Context, req Request, summaries []models.ChainSummary) (*trade.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Chains) == 0 {
		return nil, fmt.Errorf("option chains not provided: %w", models.ErrInsufficientData)
	}
	return a.constructor.Build(trade.Request{
		AsOf:            req.AsOf,
		EarningsDate:    req.EarningsDate,
		Symbol:          req.Symbol,
		Summaries:       summaries,
		Chains:          req.Chains,
		UnderlyingPrice: req.UnderlyingPrice,
	})
}

func (a *Analyzer) simulate(ctx context.Context, req Request, avgVolume float64,
	built *trade.Result, out *PnLStage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if built == nil {
		return fmt.Errorf("no trade to simulate: %w", models.ErrInsufficientData)
	}
	params := pnl.CrushParametersForVolume(avgVolume)
	grid, err := a.pnl.SimulateCalendar(built.Calendar, params)
	if err != nil {
		return err
	}
	out.Parameters = &params
	out.Calendar = reportGrid(grid)

	if built.Straddle != nil {
		sg, err := a.pnl.SimulateStraddle(built.Straddle, req.UnderlyingPrice, req.AsOf, params)
		if err != nil {
			out.StraddleError = err.Error()
		} else {
			out.Straddle = reportGrid(sg)
		}
	}
	return nil
}

func (a *Analyzer) size(ctx context.Context, req Request, in decision.Input, out *SizingStage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case in.Calendar == nil:
		return fmt.Errorf("no trade to size: %w", models.ErrInsufficientData)
	case in.PnL == nil:
		return fmt.Errorf("no P&L statistics to size from: %w", models.ErrInsufficientData)
	case in.Signals == nil:
		return fmt.Errorf("no signal count to size from: %w", models.ErrInsufficientData)
	}
	sizer := a.sizer
	if req.AccountSize > 0 {
		cfg := sizer.Config()
		cfg.AccountSize = req.AccountSize
		sizer = sizing.NewSizer(cfg, a.logger)
	}
	k := sizing.NewKellyParameters(in.PnL.WinRate, in.PnL.AvgWin, in.PnL.AvgLoss, in.Signals.SignalCount)
	ps := sizer.Size(k, in.Calendar.MaxLossPerContract())
	out.Kelly = &k
	out.Size = &ps
	return nil
}

func (a *Analyzer) assess(ctx context.Context, req Request, in decision.Input,
	g *greeks.Spread, out *RiskStage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case a.risk == nil:
		return fmt.Errorf("risk engine not configured: %w", models.ErrConfiguration)
	case in.Calendar == nil || g == nil:
		return fmt.Errorf("no trade to assess: %w", models.ErrInsufficientData)
	case in.Size == nil:
		return fmt.Errorf("no position size to assess: %w", models.ErrInsufficientData)
	case in.Size.Contracts() <= 0:
		return fmt.Errorf("position size has no contracts: %w", models.ErrValidation)
	}
	candidate := models.NewPosition("", req.Symbol, models.StrategyCalendar, in.Size.Contracts(),
		in.Calendar.NetDebit(), in.Calendar.MaxLossPerContract(), req.UnderlyingPrice, g.Net, req.Sector)
	assessment := a.risk.AssessPosition(candidate)
	out.Candidate = candidate
	out.Assessment = &assessment
	return nil
}
