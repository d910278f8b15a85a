// Package metrics provides Prometheus metrics for ReactorMon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "reactormon"
)

// Monitoring sweep metrics
var (
	// SweepsTotal counts completed monitoring sweeps.
	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sweeps_total",
			Help:      "Total completed monitoring sweeps",
		},
	)

	// SweepsSkipped counts ticks skipped because a sweep was still running.
	SweepsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sweeps_skipped_total",
			Help:      "Ticks skipped because the previous sweep had not finished",
		},
	)

	// SweepDuration tracks monitoring sweep latency.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sweep_duration_seconds",
			Help:      "Monitoring sweep latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ReactorCheckErrors counts per-reactor evaluation failures.
	ReactorCheckErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "reactor_check_errors_total",
			Help:      "Reactor evaluations that failed and were skipped",
		},
	)
)

// Alert metrics
var (
	// AlertsCreated counts created alerts by severity.
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts created",
		},
		[]string{"severity"},
	)

	// AlertsSuppressed counts violations suppressed as duplicates.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Violations suppressed by the deduplication guard",
		},
	)
)

// Notification metrics
var (
	// NotificationsSent counts successful notification deliveries.
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total notifications delivered",
		},
	)

	// NotificationsFailed counts failed notification deliveries.
	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Total notification deliveries that failed",
		},
	)

	// NotificationsRateLimited counts dispatches dropped by the rate limiter.
	NotificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "rate_limited_total",
			Help:      "Alert dispatches dropped due to rate limiting",
		},
	)
)

// Retention metrics
var (
	// RetentionRuns counts completed retention sweeps.
	RetentionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "runs_total",
			Help:      "Total completed retention sweeps",
		},
	)

	// RetentionErrors counts per-reactor cleanup failures.
	RetentionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "errors_total",
			Help:      "Reactor cleanups that failed and were skipped",
		},
	)

	// RetentionRowsDeleted counts deleted rows by category
	// (dilution, gas, level_control, alerts).
	RetentionRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "rows_deleted_total",
			Help:      "Total rows deleted by the retention sweeper",
		},
		[]string{"category"},
	)
)

// Real-time channel metrics
var (
	// RealtimeClients tracks connected websocket clients.
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected real-time channel clients",
		},
	)

	// RealtimeDropped counts messages dropped on slow clients.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Messages dropped because a client's buffer was full",
		},
	)
)

// Ingest metrics
var (
	// IngestSamples counts accepted telemetry samples.
	IngestSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_total",
			Help:      "Telemetry samples accepted via the ingest endpoint",
		},
		[]string{"kind"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
