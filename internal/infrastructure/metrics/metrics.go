// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts finished jobs by outcome (completed, retry, dead_letter)
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifyflow_jobs_processed_total",
			Help: "Number of verification jobs processed",
		},
		[]string{"outcome"},
	)

	// JobDuration tracks time spent processing one job
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verifyflow_job_duration_seconds",
			Help:    "Duration of verification jobs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// ProviderCallDuration tracks outbound provider calls
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verifyflow_provider_call_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "document_type", "outcome"},
	)

	// WebhookEvents counts inbound webhook deliveries
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifyflow_webhook_events_total",
			Help: "Number of provider webhook events received",
		},
		[]string{"outcome"},
	)

	// Notifications counts notification attempts
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifyflow_notifications_total",
			Help: "Number of notifications sent",
		},
		[]string{"kind", "outcome"},
	)

	// QueueDepth reports jobs per queue state
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "verifyflow_queue_depth",
			Help: "Number of verification jobs per queue state",
		},
		[]string{"state"},
	)
)

// ObserveQueue publishes a stats snapshot to the depth gauge
func ObserveQueue(ready, delayed, active, completed, failed int64) {
	QueueDepth.WithLabelValues("ready").Set(float64(ready))
	QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
	QueueDepth.WithLabelValues("active").Set(float64(active))
	QueueDepth.WithLabelValues("completed").Set(float64(completed))
	QueueDepth.WithLabelValues("failed").Set(float64(failed))
}
