package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/analyzer"
	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/provider"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// snapshotConcurrency bounds parallel market-data fetches per call.
const snapshotConcurrency = 4

// Outcome is the result of analyzing one symbol. Error is set when no
// snapshot could be built or the admission failed.
type Outcome struct {
	Symbol     string                   `json:"symbol"`
	Result     *analyzer.AnalysisResult `json:"result,omitempty"`
	Admitted   *models.Position         `json:"admitted,omitempty"`
	Assessment *risk.Assessment         `json:"admission,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Service ties the snapshot builder, the analyzer and the ledger together.
// The HTTP server and the CLI both drive it.
type Service struct {
	snapshots provider.SnapshotBuilder
	analyzer  *analyzer.Analyzer
	risk      *risk.Engine
	metrics   *metrics.Registry
	logger    *logrus.Logger
	now       func() time.Time
}

// NewService requires an analyzer and a ledger; reg may be nil.
func NewService(snapshots provider.SnapshotBuilder, a *analyzer.Analyzer, engine *risk.Engine,
	reg *metrics.Registry, logger *logrus.Logger) (*Service, error) {
	if a == nil || engine == nil {
		return nil, errors.New("analyzer and risk engine are required")
	}
	if snapshots.MarketData == nil {
		return nil, errors.New("market data provider is required")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if snapshots.Logger == nil {
		snapshots.Logger = logger
	}
	s := &Service{
		snapshots: snapshots,
		analyzer:  a,
		risk:      engine,
		metrics:   reg,
		logger:    logger,
		now:       time.Now,
	}
	s.reportLedger()
	return s, nil
}

// Ledger exposes the risk engine holding the positions.
func (s *Service) Ledger() *risk.Engine { return s.risk }

// Analyzer exposes the configured pipeline.
func (s *Service) Analyzer() *analyzer.Analyzer { return s.analyzer }

// Analyze builds a snapshot per symbol and runs the pipeline over the ones
// that succeeded. With admit set, actionable results whose risk stage sized
// a candidate are added to the ledger. Outcomes keep the order of symbols.
func (s *Service) Analyze(ctx context.Context, symbols []string, admit bool) []Outcome {
	asOf := s.now()
	outcomes := make([]Outcome, len(symbols))
	built := make([]*analyzer.Request, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, sym := range symbols {
		outcomes[i].Symbol = strings.ToUpper(strings.TrimSpace(sym))
		g.Go(func() error {
			req, err := s.snapshots.Build(gctx, sym, asOf)
			if err != nil {
				s.logger.WithError(err).WithField("symbol", outcomes[i].Symbol).Warn("snapshot failed")
				outcomes[i].Error = err.Error()
				return nil
			}
			built[i] = &req
			return nil
		})
	}
	_ = g.Wait()

	var (
		reqs  []analyzer.Request
		index []int
	)
	for i, req := range built {
		if req != nil {
			reqs = append(reqs, *req)
			index = append(index, i)
		}
	}
	for j, res := range s.analyzer.AnalyzeBatch(ctx, reqs) {
		out := &outcomes[index[j]]
		out.Result = res
		if admit {
			s.admitResult(out)
		}
	}
	return outcomes
}

func (s *Service) admitResult(out *Outcome) {
	if !out.Result.Actionable() {
		return
	}
	candidate, ok := out.Result.Candidate()
	if !ok {
		return
	}
	a, err := s.Admit(candidate)
	if err != nil {
		out.Error = fmt.Sprintf("admitting %s: %v", out.Symbol, err)
		return
	}
	out.Admitted = candidate
	out.Assessment = &a
}

// Admit adds p to the ledger. Limits are advisory: the assessment reports
// any violation but does not block admission.
func (s *Service) Admit(p *models.Position) (risk.Assessment, error) {
	a, err := s.risk.AdmitPosition(p)
	if err != nil {
		return a, err
	}
	s.reportLedger()
	return a, nil
}

// Close marks a ledger position closed.
func (s *Service) Close(id, reason string) (models.Position, error) {
	p, err := s.risk.ClosePosition(id, reason)
	if err != nil {
		return p, err
	}
	s.reportLedger()
	return p, nil
}

func (s *Service) reportLedger() {
	s.metrics.SetOpenPositions(len(s.risk.OpenPositions()))
}
