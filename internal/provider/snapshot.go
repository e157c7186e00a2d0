package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/analyzer"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/volatility"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Snapshot defaults.
const (
	DefaultMaxExpirations = 8
	DefaultHistoryMonths  = 3
	chainFetchLimit       = 4
)

// SnapshotBuilder assembles an analyzer.Request from live provider data.
type SnapshotBuilder struct {
	MarketData     MarketData
	Earnings       EarningsCalendar // optional
	Logger         *logrus.Logger
	MaxExpirations int
	HistoryMonths  int
}

// BuildRequest fetches everything one analysis needs with default limits.
func BuildRequest(ctx context.Context, md MarketData, earnings EarningsCalendar, symbol string, asOf time.Time) (analyzer.Request, error) {
	b := SnapshotBuilder{MarketData: md, Earnings: earnings}
	return b.Build(ctx, symbol, asOf)
}

// Build fetches the quote, the first future expirations and their chains in
// parallel, three months of daily bars and the next earnings date. Only a
// missing quote or an empty expiration list is fatal; chain, history and
// earnings failures degrade the request and are logged.
func (b SnapshotBuilder) Build(ctx context.Context, symbol string, asOf time.Time) (analyzer.Request, error) {
	logger := b.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	maxExp := b.MaxExpirations
	if maxExp <= 0 {
		maxExp = DefaultMaxExpirations
	}
	months := b.HistoryMonths
	if months <= 0 {
		months = DefaultHistoryMonths
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if asOf.IsZero() {
		asOf = time.Now()
	}
	log := logger.WithField("symbol", symbol)

	req := analyzer.Request{AsOf: asOf, Symbol: symbol}

	quote, err := b.MarketData.GetQuote(ctx, symbol)
	if err != nil {
		return req, fmt.Errorf("quote for %s: %w", symbol, err)
	}
	req.UnderlyingPrice = quote.Price()
	req.Sector = quote.Sector
	if req.UnderlyingPrice <= 0 {
		return req, fmt.Errorf("%w: no usable price for %s", models.ErrInsufficientData, symbol)
	}

	all, err := b.MarketData.GetExpirations(ctx, symbol)
	if err != nil {
		return req, fmt.Errorf("expirations for %s: %w", symbol, err)
	}
	var expirations []time.Time
	for _, exp := range all {
		if models.DaysUntil(asOf, exp) > 0 {
			expirations = append(expirations, exp)
		}
		if len(expirations) == maxExp {
			break
		}
	}
	if len(expirations) == 0 {
		return req, fmt.Errorf("%w: no future expirations for %s", models.ErrInsufficientData, symbol)
	}

	chains := make([]*models.OptionChain, len(expirations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chainFetchLimit)
	for i, exp := range expirations {
		g.Go(func() error {
			chain, err := b.MarketData.GetOptionChain(gctx, symbol, exp)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithField("expiration", exp.Format(dateLayout)).WithError(err).Warn("skipping expiration")
				return nil
			}
			chains[i] = &chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return req, fmt.Errorf("option chains for %s: %w", symbol, err)
	}

	for _, chain := range chains {
		if chain == nil {
			continue
		}
		summary, ok := chain.Summarize(req.UnderlyingPrice)
		if !ok {
			log.WithField("expiration", chain.Expiration.Format(dateLayout)).Debug("no ATM call/put pair")
			continue
		}
		req.Chains = append(req.Chains, *chain)
		req.Summaries = append(req.Summaries, summary)
	}

	history, err := b.MarketData.GetHistory(ctx, symbol, asOf.AddDate(0, -months, 0), asOf)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return req, err
		}
		log.WithError(err).Warn("price history unavailable")
	}
	req.History = history
	req.AvgVolume = volatility.AverageVolume(history, volatility.DefaultWindow)
	if req.AvgVolume <= 0 {
		req.AvgVolume = float64(quote.AverageVolume)
	}

	if b.Earnings != nil {
		event, err := b.Earnings.NextEarnings(ctx, symbol)
		switch {
		case err == nil:
			req.Earnings = event
			req.EarningsDate = &event.Date
		case errors.Is(err, ErrNoEarnings):
			log.Debug("no upcoming earnings")
		default:
			log.WithError(err).Warn("earnings lookup failed")
		}
	}

	log.WithFields(logrus.Fields{
		"price":       req.UnderlyingPrice,
		"expirations": len(req.Summaries),
		"bars":        len(req.History),
	}).Debug("snapshot built")
	return req, nil
}
