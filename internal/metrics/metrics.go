// Package metrics provides Prometheus instrumentation for the break-even
// analysis: resampling and sampling throughput, degenerate refits and
// per-stage wall time. The estimators consume it through a narrow tracker
// interface, so tests can swap in a mock without touching a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for an analysis run.
type Metrics struct {
	BootstrapResamples prometheus.Counter       // completed bootstrap resamples
	DegenerateRefits   prometheus.Counter       // resamples discarded as degenerate
	MCMCIterations     prometheus.Counter       // MCMC iterations across all chains
	MCMCAcceptance     prometheus.Histogram     // per-run mean acceptance rate
	StageDuration      *prometheus.HistogramVec // wall time per estimator stage
	PipelineRuns       prometheus.Counter       // completed pipeline invocations
	ErrorsTotal        prometheus.Counter       // analysis errors
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, keeping tests
// isolated from the global one.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		BootstrapResamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "bootstrap_resamples_total",
			Help: "Total number of completed bootstrap resamples",
		}),
		DegenerateRefits: factory.NewCounter(prometheus.CounterOpts{
			Name: "degenerate_refits_total",
			Help: "Total number of resamples discarded because the refit was degenerate",
		}),
		MCMCIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcmc_iterations_total",
			Help: "Total number of MCMC iterations across all chains",
		}),
		MCMCAcceptance: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcmc_acceptance_rate",
			Help:    "Mean post-warmup Metropolis acceptance rate per run",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Wall time per estimator stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		PipelineRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of completed balance pipeline runs",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of analysis errors",
		}),
	}
}

// Tracker methods satisfy the estimators' MetricsTracker interface.

func (m *Metrics) BootstrapResamplesAdd(n int) { m.BootstrapResamples.Add(float64(n)) }
func (m *Metrics) DegenerateResamplesInc()     { m.DegenerateRefits.Inc() }
func (m *Metrics) MCMCIterationsAdd(n int)     { m.MCMCIterations.Add(float64(n)) }
func (m *Metrics) MCMCAcceptanceObserve(rate float64) {
	m.MCMCAcceptance.Observe(rate)
}
func (m *Metrics) StageDurationObserve(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
