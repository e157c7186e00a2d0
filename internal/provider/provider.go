// Package provider supplies the market data and earnings dates that feed the
// analyzer: a Tradier REST adapter, a deterministic mock, and the retry,
// circuit breaker and Redis cache decorators that wrap them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoEarnings is returned when no upcoming earnings release is known.
var ErrNoEarnings = errors.New("no upcoming earnings")

// ErrNotFound is returned when the provider has no data for a symbol.
var ErrNotFound = errors.New("symbol not found")

const dateLayout = "2006-01-02"

// Quote is the current market for an underlying.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Sector        string  `json:"sector,omitempty"`
	Last          float64 `json:"last"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Volume        int64   `json:"volume"`
	AverageVolume int64   `json:"average_volume"`
}

// Price returns the last trade, or the bid/ask midpoint when there is none.
func (q Quote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask >= q.Bid {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// MarketData defines the quote, chain and history lookups the analyzer needs.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	// GetExpirations returns listed expirations in ascending order.
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)
	GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error)
	// GetHistory returns daily bars between start and end inclusive, oldest first.
	GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error)
}

// EarningsCalendar looks up the next earnings release for a symbol.
type EarningsCalendar interface {
	NextEarnings(ctx context.Context, symbol string) (*models.EarningsEvent, error)
}

// Provider names.
const (
	NameMock    = "mock"
	NameTradier = "tradier"
)

// Config selects and tunes the provider stack.
type Config struct {
	Name              string
	APIKey            string
	BaseURL           string
	RedisAddr         string
	Sandbox           bool
	RequestsPerMinute int
	Timeout           time.Duration
	CacheTTL          time.Duration
	Retry             RetryConfig
	Breaker           CircuitBreakerSettings
}

// Stack is a fully decorated provider ready for use.
type Stack struct {
	MarketData MarketData
	Earnings   EarningsCalendar
	closers    []io.Closer
}

// Close releases the cache connection, if any.
func (s *Stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the base provider named in cfg and wraps it with retry, a
// circuit breaker and, when RedisAddr is set, the snapshot cache.
func New(cfg Config, reg *metrics.Registry, logger *logrus.Logger) (*Stack, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	var (
		base     MarketData
		earnings EarningsCalendar
	)
	switch strings.ToLower(cfg.Name) {
	case "", NameMock:
		m := NewMockProvider()
		base, earnings = m, m
	case NameTradier:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: tradier provider requires an api key", models.ErrConfiguration)
		}
		t := NewTradierProvider(TradierConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Sandbox:           cfg.Sandbox,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Timeout:           cfg.Timeout,
		}, logger)
		base, earnings = t, t
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", models.ErrConfiguration, cfg.Name)
	}

	var md MarketData = NewRetryProvider(base, cfg.Retry, reg, logger)
	md = NewCircuitBreakerProvider(md, cfg.Breaker, logger)

	stack := &Stack{Earnings: earnings}
	if cfg.RedisAddr != "" {
		cache := NewRedisCacheFromAddr(md, cfg.RedisAddr, cfg.CacheTTL, reg, logger)
		stack.closers = append(stack.closers, cache)
		md = cache
	}
	stack.MarketData = md

	logger.WithFields(logrus.Fields{
		"provider": cfg.Name,
		"cache":    cfg.RedisAddr != "",
	}).Debug("market data provider ready")
	return stack, nil
}
