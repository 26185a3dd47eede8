// Package observability groups the Prometheus instruments exported by the
// pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the pipeline. A nil
// *Metrics is valid and records nothing, so tests can run uninstrumented.
type Metrics struct {
	ActiveTurns      prometheus.Gauge
	TurnOutcomes     *prometheus.CounterVec
	PolicyRejections *prometheus.CounterVec
	StageRetries     *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
}

// NewMetrics registers the pipeline instruments under the given namespace on
// the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on a caller-supplied registerer.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveTurns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Number of turns currently executing.",
		}),
		TurnOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Terminal turn outcomes by type.",
		}, []string{"outcome"}),
		PolicyRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_rejections_total",
			Help:      "Policy rejections by violated law.",
		}, []string{"law"}),
		StageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Single-retry attempts by pipeline stage.",
		}, []string{"stage"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Stage latency in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"stage"}),
	}
}

// TurnStarted increments the active-turn gauge.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

// TurnFinished decrements the gauge and counts the outcome.
func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
	m.TurnOutcomes.WithLabelValues(outcome).Inc()
}

// RejectedByLaw counts a policy rejection.
func (m *Metrics) RejectedByLaw(law string) {
	if m == nil {
		return
	}
	m.PolicyRejections.WithLabelValues(law).Inc()
}

// StageRetried counts one retry for a stage.
func (m *Metrics) StageRetried(stage string) {
	if m == nil {
		return
	}
	m.StageRetries.WithLabelValues(stage).Inc()
}

// ObserveStage records a stage latency sample.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// MetricsHandler exposes the default registry over HTTP.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
