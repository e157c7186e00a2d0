package provider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/sirupsen/logrus"
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // per call, across all attempts
}

// DefaultRetryConfig retries three times starting at 500ms.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Timeout:        30 * time.Second,
}

// RetryProvider retries transient provider failures with jittered
// exponential backoff.
type RetryProvider struct {
	next    MarketData
	metrics *metrics.Registry
	logger  *logrus.Logger
	config  RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ MarketData = (*RetryProvider)(nil)

// NewRetryProvider wraps next. A zero config uses DefaultRetryConfig.
func NewRetryProvider(next MarketData, cfg RetryConfig, reg *metrics.Registry, logger *logrus.Logger) *RetryProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg == (RetryConfig{}) {
		cfg = DefaultRetryConfig
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryProvider{
		next:    next,
		metrics: reg,
		logger:  logger,
		config:  cfg,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs fn until it succeeds, fails permanently, or the attempts or
// the deadline run out.
func withRetry[T any](ctx context.Context, r *RetryProvider, op, symbol string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	var lastErr error
	backoff := r.config.InitialBackoff
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s %s canceled: %w", op, symbol, err)
		}

		v, err := fn(ctx)
		r.metrics.RecordProviderCall(op, err)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}
		r.logger.WithFields(logrus.Fields{
			"operation": op,
			"symbol":    symbol,
			"attempt":   attempt + 1,
			"backoff":   backoff.String(),
		}).WithError(err).Warn("transient provider error, retrying")

		if err := r.sleep(ctx, backoff); err != nil {
			return zero, fmt.Errorf("%s %s canceled during backoff: %w", op, symbol, err)
		}
		backoff = r.calculateNextBackoff(backoff)
	}
	return zero, fmt.Errorf("%s %s failed after %d attempts: %w", op, symbol, r.config.MaxRetries+1, lastErr)
}

func (r *RetryProvider) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			r.logger.WithError(err).Debug("failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// isTransientError reports whether a retry could succeed. HTTP status codes
// are checked exactly; other errors fall back to message patterns.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoEarnings) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"network",
		"dns",
		"tcp",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// GetQuote retries the underlying quote lookup.
func (r *RetryProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return withRetry(ctx, r, "quote", symbol, func(ctx context.Context) (*Quote, error) {
		return r.next.GetQuote(ctx, symbol)
	})
}

// GetExpirations retries the underlying expirations lookup.
func (r *RetryProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return withRetry(ctx, r, "expirations", symbol, func(ctx context.Context) ([]time.Time, error) {
		return r.next.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain retries the underlying chain lookup.
func (r *RetryProvider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error) {
	return withRetry(ctx, r, "chain", symbol, func(ctx context.Context) (models.OptionChain, error) {
		return r.next.GetOptionChain(ctx, symbol, expiration)
	})
}

// GetHistory retries the underlying history lookup.
func (r *RetryProvider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	return withRetry(ctx, r, "history", symbol, func(ctx context.Context) ([]models.OHLCBar, error) {
		return r.next.GetHistory(ctx, symbol, start, end)
	})
}
