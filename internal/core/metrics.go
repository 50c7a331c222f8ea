package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Transition(string, string)                           {}

// transitionCounter is implemented by recorders that also count lifecycle outcomes.
type transitionCounter interface {
	Transition(status, result string)
}

// PrometheusMetrics exports service, lifecycle and import metrics.
type PrometheusMetrics struct {
	duration      *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	importRows    *prometheus.CounterVec
	importBatches *prometheus.CounterVec
}

// NewPrometheusMetrics registers the panelflow collectors on reg. A nil
// registerer uses a private registry, which keeps tests independent.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &PrometheusMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panelflow_operation_duration_seconds",
			Help:    "Latency of service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelflow_operations_total",
			Help: "Service operations by result.",
		}, []string{"operation", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelflow_transitions_total",
			Help: "Requested panel status transitions by target status and result.",
		}, []string{"status", "result"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelflow_import_rows_total",
			Help: "Reconciled rows by batch kind and outcome.",
		}, []string{"kind", "outcome"}),
		importBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelflow_import_batches_total",
			Help: "Reconciliation batches by kind and final state.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.duration, m.operations, m.transitions, m.importRows, m.importBatches)
	return m
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
	m.operations.WithLabelValues(operation, result).Inc()
}

// Transition counts one requested transition.
func (m *PrometheusMetrics) Transition(status, result string) {
	m.transitions.WithLabelValues(status, result).Inc()
}

// ImportRow counts one reconciled row.
func (m *PrometheusMetrics) ImportRow(kind, outcome string) {
	m.importRows.WithLabelValues(kind, outcome).Inc()
}

// ImportBatch counts one finished batch.
func (m *PrometheusMetrics) ImportBatch(kind, result string) {
	m.importBatches.WithLabelValues(kind, result).Inc()
}
