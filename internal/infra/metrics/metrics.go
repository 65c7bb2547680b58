// Package metrics exposes Prometheus instrumentation for the sweep, delivery,
// mode switch, latency probe and the status HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sweep Metrics
	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "party_sweep_runs_total",
			Help: "Total number of due-check sweeps executed",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "party_sweep_duration_seconds",
			Help:    "Duration of a single due-check sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SweepRecords counts due records per outcome: notified, failed, sleeping, suppressed, stale.
	SweepRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "party_sweep_records_total",
			Help: "Due records handled by the sweep, by outcome",
		},
		[]string{"outcome"},
	)

	// Delivery Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "party_notifications_sent_total",
			Help: "Notifications delivered to the chat platform",
		},
		[]string{"kind"}, // "due", "lead"
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "party_notification_failures_total",
			Help: "Notification deliveries that failed and will be retried next tick",
		},
		[]string{"kind"},
	)

	// Mode Metrics
	MaintenanceMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "party_maintenance_mode",
			Help: "1 while the bot is in maintenance mode, 0 otherwise",
		},
	)

	ModeToggles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "party_mode_toggles_total",
			Help: "Committed global mode transitions",
		},
	)

	// Schedule Metrics
	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "party_active_users",
			Help: "Number of active tracked users",
		},
	)

	// Probe Metrics
	PlatformLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "party_platform_latency_milliseconds",
			Help: "Latest measured round trip to the chat platform",
		},
	)

	// HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "party_http_requests_total",
			Help: "Status server requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// BoolGauge converts a flag into a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
