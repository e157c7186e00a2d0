package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &APIError{Status: http.StatusTooManyRequests}, true},
		{"503", &APIError{Status: http.StatusServiceUnavailable}, true},
		{"404", &APIError{Status: http.StatusNotFound, Body: "GET /v1/x 503ms"}, false},
		{"wrapped 502", fmt.Errorf("chain: %w", &APIError{Status: http.StatusBadGateway}), true},
		{"timeout text", errors.New("i/o timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"not found", fmt.Errorf("%w: AAPL", ErrNotFound), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"validation", errors.New("invalid symbol"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetryProvider_RetriesTransient(t *testing.T) {
	reg := metrics.New()
	fake := newFake(fixedMock(), &APIError{Status: http.StatusServiceUnavailable}, 2)
	r := NewRetryProvider(fake, RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, reg, nil)
	r.sleep = noSleep

	q, err := r.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Greater(t, q.Last, 0.0)
	assert.Equal(t, 3, fake.count("quote"))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.ProviderCalls.WithLabelValues("quote", metrics.ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ProviderCalls.WithLabelValues("quote", metrics.ResultOK)))
}

func TestRetryProvider_GivesUp(t *testing.T) {
	fake := newFake(fixedMock(), errors.New("connection reset by peer"), -1)
	r := NewRetryProvider(fake, RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil, nil)
	r.sleep = noSleep

	_, err := r.GetExpirations(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, fake.count("expirations"))
}

func TestRetryProvider_PermanentErrorNotRetried(t *testing.T) {
	fake := newFake(fixedMock(), &APIError{Status: http.StatusUnauthorized, Body: "bad token"}, -1)
	r := NewRetryProvider(fake, RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil, nil)
	r.sleep = noSleep

	_, err := r.GetHistory(context.Background(), "AAPL", fixedNow.AddDate(0, -1, 0), fixedNow)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, fake.count("history"))
}

func TestRetryProvider_CanceledDuringBackoff(t *testing.T) {
	fake := newFake(fixedMock(), errors.New("network unreachable"), -1)
	r := NewRetryProvider(fake, RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}
	_, err := r.GetOptionChain(ctx, "AAPL", fixedNow.AddDate(0, 0, 7))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.count("chain"))
}

func TestRetryProvider_BackoffGrowsAndCaps(t *testing.T) {
	r := NewRetryProvider(fixedMock(), RetryConfig{MaxRetries: 1, InitialBackoff: time.Second, MaxBackoff: 2 * time.Second}, nil, nil)
	next := r.calculateNextBackoff(time.Second)
	assert.GreaterOrEqual(t, next, 1500*time.Millisecond)
	assert.Less(t, next, 1500*time.Millisecond+1500*time.Millisecond/4)

	capped := r.calculateNextBackoff(10 * time.Second)
	assert.GreaterOrEqual(t, capped, 2*time.Second)
	assert.Less(t, capped, 2*time.Second+2*time.Second/4)
}

func TestCircuitBreakerProvider_Trips(t *testing.T) {
	fake := newFake(fixedMock(), errors.New("boom"), -1)
	cb := NewCircuitBreakerProvider(fake, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := cb.GetQuote(context.Background(), "AAPL")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, fake.count("quote"), "open breaker short-circuits")
}

func TestCircuitBreakerProvider_PassesThrough(t *testing.T) {
	cb := NewCircuitBreakerProvider(fixedMock(), CircuitBreakerSettings{}, nil)
	ctx := context.Background()

	exps, err := cb.GetExpirations(ctx, "AAPL")
	require.NoError(t, err)
	chain, err := cb.GetOptionChain(ctx, "AAPL", exps[0])
	require.NoError(t, err)
	assert.NotEmpty(t, chain.Calls)
	bars, err := cb.GetHistory(ctx, "AAPL", fixedNow.AddDate(0, -1, 0), fixedNow)
	require.NoError(t, err)
	assert.NotEmpty(t, bars)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerProvider_CancellationDoesNotTrip(t *testing.T) {
	fake := newFake(fixedMock(), context.Canceled, -1)
	cb := NewCircuitBreakerProvider(fake, CircuitBreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.5,
	}, nil)
	for i := 0; i < 5; i++ {
		_, _ = cb.GetQuote(context.Background(), "AAPL")
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNew_BuildsStack(t *testing.T) {
	stack, err := New(Config{Name: "mock"}, nil, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, stack.Close()) }()
	assert.IsType(t, &CircuitBreakerProvider{}, stack.MarketData)
	assert.IsType(t, &MockProvider{}, stack.Earnings)

	withCache, err := New(Config{Name: "mock", RedisAddr: "127.0.0.1:6390"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, withCache.MarketData)
	assert.NoError(t, withCache.Close())

	_, err = New(Config{Name: "tradier"}, nil, nil)
	assert.Error(t, err, "tradier needs an api key")

	_, err = New(Config{Name: "bloomberg"}, nil, nil)
	assert.Error(t, err)
}
