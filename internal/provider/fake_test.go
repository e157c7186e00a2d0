package provider

import (
	"context"
	"sync"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// fakeMarketData fails the first failures calls of each operation with err
// and then delegates to inner.
type fakeMarketData struct {
	inner    MarketData
	err      error
	failures int

	mu    sync.Mutex
	calls map[string]int
}

func newFake(inner MarketData, err error, failures int) *fakeMarketData {
	return &fakeMarketData{inner: inner, err: err, failures: failures, calls: map[string]int{}}
}

func (f *fakeMarketData) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.err != nil && (f.failures < 0 || f.calls[op] <= f.failures) {
		return f.err
	}
	return nil
}

func (f *fakeMarketData) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeMarketData) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := f.hit("quote"); err != nil {
		return nil, err
	}
	return f.inner.GetQuote(ctx, symbol)
}

func (f *fakeMarketData) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := f.hit("expirations"); err != nil {
		return nil, err
	}
	return f.inner.GetExpirations(ctx, symbol)
}

func (f *fakeMarketData) GetOptionChain(ctx context.Context, symbol string, exp time.Time) (models.OptionChain, error) {
	if err := f.hit("chain"); err != nil {
		return models.OptionChain{}, err
	}
	return f.inner.GetOptionChain(ctx, symbol, exp)
}

func (f *fakeMarketData) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	if err := f.hit("history"); err != nil {
		return nil, err
	}
	return f.inner.GetHistory(ctx, symbol, start, end)
}

var fixedNow = time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)

func fixedMock() *MockProvider {
	return NewMockProviderAt(func() time.Time { return fixedNow })
}
