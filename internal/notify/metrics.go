package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lessonnotifier"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notifications by status",
		},
		[]string{"status"},
	)

	notificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "processed_total",
			Help:      "Total notifications routed to a terminal status",
		},
		[]string{"type", "result"},
	)

	notificationSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver an email",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	notificationsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total notifications fetched from the pending queue",
		},
	)

	reminderScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "scans_total",
			Help:      "Total reminder scan runs",
		},
	)

	remindersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "created_total",
			Help:      "Total class reminders created",
		},
	)
)

// recordProcessed records a notification reaching a terminal status.
func recordProcessed(notificationType, result string) {
	notificationsProcessed.WithLabelValues(notificationType, result).Inc()
}

// recordSendDuration records email delivery duration.
func recordSendDuration(duration time.Duration) {
	notificationSendDuration.Observe(duration.Seconds())
}

// recordQueueFetched records the number of items drained from the queue.
func recordQueueFetched(count int) {
	notificationsFetched.Add(float64(count))
}

func recordReminderScan() {
	reminderScans.Inc()
}

func recordReminderCreated() {
	remindersCreated.Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	notificationQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
	notificationQueueSize.WithLabelValues("skipped").Set(float64(stats.Skipped))
}
