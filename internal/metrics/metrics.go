// Package metrics exposes Prometheus instrumentation for comparison runs and
// oracle orchestration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenthands/redline/internal/core/comparator"
	"github.com/agenthands/redline/internal/core/model"
)

const namespace = "redline"

// Metrics holds every collector on its own registry. It implements
// comparator.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Transitions counts orchestrator state entries. Labels: state
	Transitions *prometheus.CounterVec
	// OracleAttempts counts oracle calls by validation outcome. Labels: outcome
	OracleAttempts *prometheus.CounterVec
	// OracleLatency measures oracle call duration. Labels: outcome
	OracleLatency *prometheus.HistogramVec
	// Results counts finalized results. Labels: source, review_state, risk
	Results *prometheus.CounterVec

	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Rejected      prometheus.Counter
	ConfigVersion prometheus.Gauge
	AuditDegraded prometheus.Gauge
	Reviews       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comparator",
			Name:      "transitions_total",
			Help:      "Orchestrator state transitions by target state.",
		}, []string{"state"}),
		OracleAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "attempts_total",
			Help:      "Oracle calls by validation outcome.",
		}, []string{"outcome"}),
		OracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Oracle call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comparator",
			Name:      "results_total",
			Help:      "Finalized comparison results.",
		}, []string{"source", "review_state", "risk"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Comparison runs by status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of comparison runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rejected_clauses_total",
			Help:      "Clauses excluded from comparison.",
		}),
		ConfigVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_version",
			Help:      "Version of the active configuration snapshot.",
		}),
		AuditDegraded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "degraded",
			Help:      "1 when durable audit writes are failing.",
		}),
		Reviews: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Applied human review decisions.",
		}, []string{"decision"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Transition(_ string, _, to comparator.State) {
	m.Transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) Attempt(outcome model.ValidationOutcome, elapsed time.Duration) {
	m.OracleAttempts.WithLabelValues(string(outcome)).Inc()
	m.OracleLatency.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (m *Metrics) Finalized(res *model.ComparisonResult) {
	m.Results.WithLabelValues(string(res.Provenance.Source), string(res.ReviewState), string(res.RiskLevel)).Inc()
}

// ObserveRun records a finished run. report may be nil when the run failed
// before producing one.
func (m *Metrics) ObserveRun(report *model.Report, err error) {
	status := "ok"
	switch {
	case report != nil && report.Cancelled:
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	m.Runs.WithLabelValues(status).Inc()
	if report == nil {
		return
	}
	m.Rejected.Add(float64(len(report.Rejected)))
	if !report.CompletedAt.IsZero() {
		m.RunDuration.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
	}
}

func (m *Metrics) SetAuditDegraded(degraded bool) {
	if degraded {
		m.AuditDegraded.Set(1)
		return
	}
	m.AuditDegraded.Set(0)
}
