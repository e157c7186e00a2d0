package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTimer(t *testing.T) {
	r := New()
	r.StartStage("signals").Stop(nil)
	r.StartStage("trade").Stop(errors.New("no chain"))
	r.StartStage("trade").Stop(errors.New("no chain"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.StageErrors.WithLabelValues("trade")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.StageErrors.WithLabelValues("signals")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.StageDuration))
}

func TestCountersAndGauges(t *testing.T) {
	r := New()
	done := r.AnalysisStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActiveAnalyses))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveAnalyses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Analyses))

	r.RecordDecision("original", "RECOMMENDED")
	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCache(false)
	r.RecordProviderCall("quote", nil)
	r.RecordProviderCall("quote", errors.New("timeout"))
	r.SetOpenPositions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Decisions.WithLabelValues("original", "RECOMMENDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ProviderCalls.WithLabelValues("quote", ResultError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.LedgerPositions))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.StartStage("signals").Stop(errors.New("x"))
		r.AnalysisStarted()()
		r.RecordDecision("original", "AVOID")
		r.RecordCache(true)
		r.RecordProviderCall("chain", nil)
		r.SetOpenPositions(1)
	})
}

func TestHandler(t *testing.T) {
	r := New()
	r.RecordDecision("hybrid", "CONSIDER")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ivcrush_decisions_total{decision="CONSIDER",framework="hybrid"} 1`)
}
