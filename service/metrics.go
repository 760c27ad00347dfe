package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics counts operations served and the cost charged for them
type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	charged    *prometheus.CounterVec
}

// NewMetrics creates the service metrics and registers
// them with registerer. It panics if they are already
// registered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tenantkv",
				Subsystem: "service",
				Name:      "operations_total",
				Help:      "Counter of operations by outcome.",
			}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tenantkv",
				Subsystem: "service",
				Name:      "operation_duration_seconds",
				Help:      "Bucketed histogram of operation latency (s).",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			}, []string{"operation"}),
		charged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tenantkv",
				Subsystem: "service",
				Name:      "cost_total",
				Help:      "Counter of cost charged to tenants.",
			}, []string{"operation"}),
	}

	registerer.MustRegister(metrics.operations, metrics.latency, metrics.charged)

	return metrics
}

func (metrics *Metrics) observe(operation string, elapsed time.Duration, c int64, err error) {
	if metrics == nil {
		return
	}

	outcome := OutcomeSuccess

	if err != nil {
		outcome = OutcomeError
	}

	metrics.operations.WithLabelValues(operation, outcome).Inc()
	metrics.latency.WithLabelValues(operation).Observe(elapsed.Seconds())

	if err == nil && c > 0 {
		metrics.charged.WithLabelValues(operation).Add(float64(c))
	}
}

// Operations returns the counter of operation with outcome
func (metrics *Metrics) Operations(operation string, outcome string) prometheus.Counter {
	return metrics.operations.WithLabelValues(operation, outcome)
}

// Charged returns the counter of cost charged for operation
func (metrics *Metrics) Charged(operation string) prometheus.Counter {
	return metrics.charged.WithLabelValues(operation)
}
