package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports service operation metrics and per-day
// capacity utilization through a prometheus registry.
type PrometheusMetricsRecorder struct {
	durations   *prometheus.HistogramVec
	results     *prometheus.CounterVec
	utilization *prometheus.GaugeVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with the supplied registerer. A nil registerer falls back to the
// default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dosecore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of fulfillment service operations.",
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dosecore",
			Name:      "operation_results_total",
			Help:      "Outcomes of fulfillment service operations.",
		}, []string{"operation", "status"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dosecore",
			Name:      "capacity_utilization_percent",
			Help:      "Booked share of daily production capacity.",
		}, []string{"date"}),
	}
	reg.MustRegister(r.durations, r.results, r.utilization)
	return r
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, outcomeLabel(success)).Inc()
}

// SetUtilization publishes the booked percentage for a calendar date.
func (r *PrometheusMetricsRecorder) SetUtilization(date string, percent float64) {
	r.utilization.WithLabelValues(date).Set(percent)
}
