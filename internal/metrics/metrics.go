package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks order executions by platform and outcome.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_requests_total",
			Help: "Total number of order executions routed (by platform and result).",
		},
		[]string{"platform", "result"}, // result = "ok" | "error"
	)

	// Measures end-to-end execution duration including retries.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execution_duration_seconds",
			Help:    "Duration of order executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"platform"},
	)

	// Counts place-order retry attempts.
	ExecutionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_retries_total",
			Help: "Total number of place-order retry attempts.",
		},
		[]string{"platform"},
	)

	// Gauges currently active tracking subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_active_subscriptions",
			Help: "Number of currently active order tracking subscriptions.",
		},
	)

	// Measures one status-poll round trip.
	PollLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_poll_latency_seconds",
			Help:    "Time taken for one order status poll.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// Tracks non-fatal polling errors by reason.
	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_poll_errors_total",
			Help: "Count of non-fatal polling errors by platform and reason.",
		},
		[]string{"platform", "reason"},
	)

	// Tracks detected order status transitions.
	StatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_status_changes_total",
			Help: "Total number of detected order status transitions.",
		},
		[]string{"platform", "new_status"},
	)

	// Tracks notifications by type and delivery status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications dispatched.",
		},
		[]string{"type", "delivery_status"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_core_errors_total",
			Help: "Count of component-level errors by component and reason.",
		},
		[]string{"component", "reason"},
	)
)

func IncExecution(platform, result string) {
	ExecutionsTotal.WithLabelValues(platform, result).Inc()
}

func ObserveExecutionDuration(platform string, start time.Time) {
	ExecutionDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
}

func IncRetry(platform string) {
	ExecutionRetries.WithLabelValues(platform).Inc()
}

func SetActiveSubscriptions(n int) {
	ActiveSubscriptions.Set(float64(n))
}

func ObservePollLatency(platform string, start time.Time) {
	PollLatency.WithLabelValues(platform).Observe(time.Since(start).Seconds())
}

func IncPollError(platform, reason string) {
	PollErrors.WithLabelValues(platform, reason).Inc()
}

func IncStatusChange(platform, newStatus string) {
	StatusChangesTotal.WithLabelValues(platform, newStatus).Inc()
}

func IncNotification(notifType, deliveryStatus string) {
	NotificationsTotal.WithLabelValues(notifType, deliveryStatus).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
