// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PassesTotal   *prometheus.CounterVec
	PassDuration  prometheus.Histogram
	MatchesMerged prometheus.Counter

	// Session metrics
	SessionMatches prometheus.Gauge
	SessionRounds  prometheus.Gauge

	// Sink metrics
	SinkDeliveries *prometheus.CounterVec
	SinkFailures   *prometheus.CounterVec
	QueueDropped   prometheus.Counter

	// Health metrics
	LastSuccessfulPass prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "archerstats"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "passes_total",
			Help:      "Evaluation passes by outcome",
		}, []string{"outcome"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pass_duration_seconds",
			Help:      "Time spent in one evaluation pass",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		MatchesMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "matches_merged_total",
			Help:      "Matches merged into the live session",
		}),

		SessionMatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "matches",
			Help:      "Matches in the current session",
		}),
		SessionRounds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rounds",
			Help:      "Rounds in the current session",
		}),

		SinkDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Match notifications delivered, by sink",
		}, []string{"sink"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Match notifications that failed, by sink",
		}, []string{"sink"}),
		QueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Match notifications dropped because the queue was full",
		}),

		LastSuccessfulPass: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pass_timestamp_seconds",
			Help:      "Unix time of the last pass that did not fail",
		}),
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
