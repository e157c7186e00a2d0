package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTradier(t *testing.T, handler http.HandlerFunc) *TradierProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTradierProvider(TradierConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", RequestsPerMinute: 60000}, nil)
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 429, Body: "too many requests"}
	assert.Equal(t, "API error 429: too many requests", err.Error())
}

func TestNewTradierProvider_Defaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TradierConfig
		wantURL string
	}{
		{"sandbox default", TradierConfig{Sandbox: true}, TradierSandboxURL},
		{"production default", TradierConfig{}, TradierProductionURL},
		{"custom trimmed", TradierConfig{BaseURL: "https://example.test/api/"}, "https://example.test/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTradierProvider(tt.cfg, nil)
			assert.Equal(t, tt.wantURL, p.baseURL)
		})
	}
}

func TestTradier_GetQuote_SingleAndArray(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr error
	}{
		{"single", `{"quotes":{"quote":{"symbol":"AAPL","last":182.5,"average_volume":51000000}}}`, 182.5, nil},
		{"array", `{"quotes":{"quote":[{"symbol":"AAPL","last":181},{"symbol":"MSFT","last":410}]}}`, 181, nil},
		{"empty", `{"quotes":{"quote":null}}`, 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/markets/quotes", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
				_, _ = fmt.Fprint(w, tt.body)
			})
			q, err := p.GetQuote(context.Background(), "AAPL")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Price())
		})
	}
}

func TestTradier_GetExpirationsSorted(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("includeAllRoots"))
		_, _ = fmt.Fprint(w, `{"expirations":{"date":["2026-11-20","2026-10-23","2026-10-30"]}}`)
	})
	exps, err := p.GetExpirations(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, exps, 3)
	assert.Equal(t, "2026-10-23", exps[0].Format(dateLayout))
	assert.Equal(t, "2026-11-20", exps[2].Format(dateLayout))
}

func TestTradier_GetExpirationsSingleDate(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"expirations":{"date":"2026-10-23"}}`)
	})
	exps, err := p.GetExpirations(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, exps, 1)
}

func TestTradier_GetOptionChain(t *testing.T) {
	body := `{"options":{"option":[
		{"symbol":"AAPL261023C00180000","option_type":"call","strike":180,"bid":4.1,"ask":4.3,"last":4.2,"volume":120,"open_interest":900,
		 "greeks":{"delta":0.55,"gamma":0.04,"theta":-0.2,"vega":0.11,"mid_iv":0.42}},
		{"symbol":"AAPL261023P00180000","option_type":"put","strike":180,"bid":3.6,"ask":3.8,"last":3.7,"volume":80,"open_interest":700,
		 "greeks":{"delta":-0.45,"gamma":0.04,"theta":-0.19,"vega":0.11,"mid_iv":0,"smv_vol":0.40}},
		{"symbol":"AAPL261023C00175000","option_type":"call","strike":175,"bid":7.9,"ask":8.2,"last":8.0}
	]}}`
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/markets/options/chains", r.URL.Path)
		assert.Equal(t, "2026-10-23", r.URL.Query().Get("expiration"))
		assert.Equal(t, "true", r.URL.Query().Get("greeks"))
		_, _ = fmt.Fprint(w, body)
	})

	exp := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)
	chain, err := p.GetOptionChain(context.Background(), "AAPL", exp)
	require.NoError(t, err)
	require.Len(t, chain.Calls, 2)
	require.Len(t, chain.Puts, 1)

	assert.Equal(t, 175.0, chain.Calls[0].Strike, "calls sorted by strike")
	assert.Zero(t, chain.Calls[0].ImpliedVolatility)
	assert.Nil(t, chain.Calls[0].Greeks)

	call := chain.Calls[1]
	assert.InDelta(t, 0.42, call.ImpliedVolatility, 1e-9)
	require.NotNil(t, call.Greeks)
	assert.InDelta(t, 0.55, call.Greeks.Delta, 1e-9)
	assert.Equal(t, models.OptionTypeCall, call.OptionType)
	assert.InDelta(t, 0.40, chain.Puts[0].ImpliedVolatility, 1e-9, "falls back to smv_vol")

	s, ok := chain.Summarize(181)
	require.True(t, ok)
	assert.Equal(t, 180.0, s.ATMStrike)
	assert.InDelta(t, 7.9, s.StraddleMid, 1e-9)
}

func TestTradier_GetHistory(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "2026-07-16", r.URL.Query().Get("start"))
		_, _ = fmt.Fprint(w, `{"history":{"day":[
			{"date":"2026-10-14","open":100,"high":102,"low":99,"close":101,"volume":1000},
			{"date":"2026-10-15","open":101,"high":103,"low":100,"close":102,"volume":2000}]}}`)
	})
	start := time.Date(2026, 7, 16, 0, 0, 0, 0, time.UTC)
	bars, err := p.GetHistory(context.Background(), "AAPL", start, start.AddDate(0, 3, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.Equal(t, int64(2000), bars[1].Volume)
}

func TestTradier_Non2xxReturnsAPIError(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, "slow down")
	})
	_, err := p.GetQuote(context.Background(), "AAPL")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.True(t, strings.Contains(apiErr.Body, "retry-after: 7"))
	assert.True(t, isTransientError(err))
}

func TestTradier_NextEarnings(t *testing.T) {
	soon := time.Now().UTC().AddDate(0, 0, 10).Format(dateLayout)
	later := time.Now().UTC().AddDate(0, 0, 100).Format(dateLayout)
	past := time.Now().UTC().AddDate(0, 0, -30).Format(dateLayout)

	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/beta/markets/fundamentals/calendars", r.URL.Path)
		_, _ = fmt.Fprintf(w, `[{"request":"AAPL","results":[{"tables":{"corporate_calendars":[
			{"begin_date_time":%q,"event":"Q3 Earnings Release","event_status":"Confirmed"},
			{"begin_date_time":%q,"event":"Q4 Earnings Release","event_status":"Unconfirmed"},
			{"begin_date_time":%q,"event":"Q2 Earnings Release","event_status":"Confirmed"},
			{"begin_date_time":%q,"event":"Annual Shareholder Meeting","event_status":"Confirmed"}
		]}}]}]`, later, soon, past, soon)
	})

	ev, err := p.NextEarnings(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, soon, ev.Date.Format(dateLayout))
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.False(t, ev.Confirmed)
	assert.Equal(t, models.TimingUnknown, ev.Timing)
}

func TestTradier_NextEarningsNone(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"request":"AAPL","results":[{"tables":{"corporate_calendars":null}}]}]`)
	})
	_, err := p.NextEarnings(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrNoEarnings)
}

func TestTradier_ContextCanceled(t *testing.T) {
	p := newTestTradier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.GetQuote(ctx, "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
