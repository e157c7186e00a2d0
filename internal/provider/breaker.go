package provider

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after five calls at a 60% failure rate
// and stays open for 30 seconds.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// CircuitBreakerProvider wraps a MarketData with circuit breaker functionality
type CircuitBreakerProvider struct {
	next    MarketData
	breaker *gobreaker.CircuitBreaker
}

var _ MarketData = (*CircuitBreakerProvider)(nil)

// NewCircuitBreakerProvider creates a CircuitBreakerProvider. Zero-valued
// settings fall back to DefaultCircuitBreakerSettings.
func NewCircuitBreakerProvider(next MarketData, settings CircuitBreakerSettings, logger *logrus.Logger) *CircuitBreakerProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if settings == (CircuitBreakerSettings{}) {
		settings = DefaultCircuitBreakerSettings()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// A caller giving up is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &CircuitBreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State reports the breaker state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	md MarketData,
	fn func(MarketData) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(md) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetQuote wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.next, func(md MarketData) (*Quote, error) {
		return md.GetQuote(ctx, symbol)
	})
}

// GetExpirations wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return execCircuitBreaker(c.breaker, c.next, func(md MarketData) ([]time.Time, error) {
		return md.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error) {
	return execCircuitBreaker(c.breaker, c.next, func(md MarketData) (models.OptionChain, error) {
		return md.GetOptionChain(ctx, symbol, expiration)
	})
}

// GetHistory wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	return execCircuitBreaker(c.breaker, c.next, func(md MarketData) ([]models.OHLCBar, error) {
		return md.GetHistory(ctx, symbol, start, end)
	})
}
