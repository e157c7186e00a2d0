// Package metrics holds the Prometheus collectors for the analysis pipeline
// and its market-data collaborators.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ivcrush"

// Stage results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Registry holds every collector. A nil *Registry is valid and records
// nothing.
type Registry struct {
	registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	Analyses        prometheus.Counter
	ActiveAnalyses  prometheus.Gauge
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ProviderCalls   *prometheus.CounterVec
	LedgerPositions prometheus.Gauge
}

// New creates the collectors on a private registry, with Go runtime and
// process collectors included.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"stage", "result"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_errors_total",
				Help:      "Pipeline stages that degraded to an error field",
			},
			[]string{"stage"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Final decisions by framework and outcome",
			},
			[]string{"framework", "decision"},
		),
		Analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses started",
		}),
		ActiveAnalyses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_analyses",
			Help:      "Analyses currently running",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Market-data snapshot cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Market-data snapshot cache misses",
		}),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Market-data provider calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		LedgerPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_open_positions",
			Help:      "Open positions in the ledger",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.StageDuration,
		r.StageErrors,
		r.Decisions,
		r.Analyses,
		r.ActiveAnalyses,
		r.CacheHits,
		r.CacheMisses,
		r.ProviderCalls,
		r.LedgerPositions,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// StageTimer tracks execution time for one pipeline stage
type StageTimer struct {
	registry *Registry
	stage    string
	start    time.Time
}

// StartStage begins timing a stage.
func (r *Registry) StartStage(stage string) *StageTimer {
	return &StageTimer{registry: r, stage: stage, start: time.Now()}
}

// Stop records the stage duration; a non-nil err also counts a stage error.
func (t *StageTimer) Stop(err error) {
	if t == nil || t.registry == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
		t.registry.StageErrors.WithLabelValues(t.stage).Inc()
	}
	t.registry.StageDuration.WithLabelValues(t.stage, result).Observe(time.Since(t.start).Seconds())
}

// AnalysisStarted counts an analysis and marks it active. The returned func
// marks it finished.
func (r *Registry) AnalysisStarted() func() {
	if r == nil {
		return func() {}
	}
	r.Analyses.Inc()
	r.ActiveAnalyses.Inc()
	return r.ActiveAnalyses.Dec
}

// RecordDecision counts a final decision.
func (r *Registry) RecordDecision(framework, decision string) {
	if r == nil {
		return
	}
	r.Decisions.WithLabelValues(framework, decision).Inc()
}

// RecordCache counts a cache lookup.
func (r *Registry) RecordCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheHits.Inc()
	} else {
		r.CacheMisses.Inc()
	}
}

// RecordProviderCall counts one provider call.
func (r *Registry) RecordProviderCall(operation string, err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.ProviderCalls.WithLabelValues(operation, result).Inc()
}

// SetOpenPositions reports the ledger size.
func (r *Registry) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.LedgerPositions.Set(float64(n))
}
