package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the worker runtime.
type Metrics struct {
	WorkTotal    *prometheus.CounterVec
	WorkDuration *prometheus.HistogramVec
	DLQTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the worker metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		WorkTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanserve_work_total",
				Help: "Work items processed, by worker and terminal status",
			},
			[]string{"worker", "status"},
		),
		WorkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loanserve_work_duration_seconds",
				Help:    "End-to-end work item duration including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker"},
		),
		DLQTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanserve_work_dlq_total",
				Help: "Work items dead-lettered after exhausting retries",
			},
			[]string{"worker"},
		),
	}
}

// Observe records one terminal outcome.
func (m *Metrics) Observe(workerName string, status Status, d time.Duration) {
	m.WorkTotal.WithLabelValues(workerName, string(status)).Inc()
	m.WorkDuration.WithLabelValues(workerName).Observe(d.Seconds())
	if status == StatusDLQ {
		m.DLQTotal.WithLabelValues(workerName).Inc()
	}
}
