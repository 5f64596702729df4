package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mirror metrics
	MirroredServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "panelsync_mirrored_servers_total",
			Help: "Total number of mirrored servers by derived status",
		},
		[]string{"status"},
	)

	// Reconciliation metrics
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_sync_runs_total",
			Help: "Total number of reconciliation runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "panelsync_sync_duration_seconds",
			Help:    "Time taken by a reconciliation run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_sync_changes_total",
			Help: "Mirror records touched by reconciliation, by operation",
		},
		[]string{"op"},
	)

	LastSuccessfulSync = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "panelsync_last_successful_sync_timestamp_seconds",
			Help: "Unix time of the last successful reconciliation per panel",
		},
		[]string{"panel"},
	)

	// Connection resolver metrics
	ResolverAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_resolver_attempts_total",
			Help: "Upstream connection attempts by strategy and outcome kind",
		},
		[]string{"method", "result"},
	)

	ResolverAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panelsync_resolver_attempt_duration_seconds",
			Help:    "Latency of a single connection strategy attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ResolverExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "panelsync_resolver_exhausted_total",
			Help: "Requests that failed every strategy in every retry round",
		},
	)

	// Live metrics cache
	LiveRunningServers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "panelsync_live_running_servers",
			Help: "Servers currently tracked as running by the live metrics cache",
		},
	)

	LivePollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "panelsync_live_poll_errors_total",
			Help: "Failed per-server resource polls",
		},
	)

	// Power control
	PowerActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_power_actions_total",
			Help: "Power signals forwarded to the panel by action and result",
		},
		[]string{"action", "result"},
	)

	// Event metrics
	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_events_dropped_total",
			Help: "Event deliveries skipped because a subscriber buffer was full, by event type",
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelsync_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panelsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(MirroredServersTotal)
	prometheus.MustRegister(SyncRunsTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncChangesTotal)
	prometheus.MustRegister(LastSuccessfulSync)
	prometheus.MustRegister(ResolverAttemptsTotal)
	prometheus.MustRegister(ResolverAttemptDuration)
	prometheus.MustRegister(ResolverExhaustedTotal)
	prometheus.MustRegister(LiveRunningServers)
	prometheus.MustRegister(LivePollErrorsTotal)
	prometheus.MustRegister(PowerActionsTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
