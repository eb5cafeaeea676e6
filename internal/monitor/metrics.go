package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the code runner.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RunErrors        *prometheus.CounterVec
	ActiveRuns       prometheus.Gauge
	RequestsInFlight prometheus.Gauge
	CodeSizeChars    prometheus.Histogram
	OutputSizeChars  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "runs_total",
				Help:      "Total number of harness runs by mode and status.",
			},
			[]string{"mode", "status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "run_duration_seconds",
				Help:      "Duration of harness runs in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"mode"},
		),

		RunErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "run_errors_total",
				Help:      "Total harness errors by type.",
			},
			[]string{"type"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Name:      "active_runs",
				Help:      "Number of currently running subprocesses.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeChars: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "code_size_chars",
				Help:      "Size of submitted code in characters.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 6),
			},
		),

		OutputSizeChars: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "output_size_chars",
				Help:      "Size of captured output in characters.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunErrors,
		m.ActiveRuns,
		m.RequestsInFlight,
		m.CodeSizeChars,
		m.OutputSizeChars,
	)

	return m
}

// RecordRun records metrics for a completed harness run.
func (m *Metrics) RecordRun(mode, status string, durationSec float64) {
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(durationSec)
}

// RecordError records a harness error by type.
func (m *Metrics) RecordError(errType string) {
	m.RunErrors.WithLabelValues(errType).Inc()
}
