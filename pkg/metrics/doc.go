/*
Package metrics provides Prometheus metrics and component health for panelsync.

All collectors are package-level variables registered with the default
registry in init, and exposed by Handler on /metrics.

# Metric families

	panelsync_mirrored_servers_total{status}               gauge
	panelsync_sync_runs_total{mode,result}                 counter
	panelsync_sync_duration_seconds                        histogram
	panelsync_sync_changes_total{op}                       counter
	panelsync_last_successful_sync_timestamp_seconds{panel} gauge
	panelsync_resolver_attempts_total{method,result}       counter
	panelsync_resolver_attempt_duration_seconds{method}    histogram
	panelsync_resolver_exhausted_total                     counter
	panelsync_live_running_servers                         gauge
	panelsync_live_poll_errors_total                       counter
	panelsync_power_actions_total{action,result}           counter
	panelsync_events_dropped_total{type}                   counter
	panelsync_api_requests_total{route,status}             counter
	panelsync_api_request_duration_seconds{route}          histogram

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

# Health

RegisterComponent and UpdateComponent record the state of named components;
HealthHandler serves them on /health/components. "store" and "api" are
critical and turn the report unhealthy. Any other component, such as
"panel" (updated after every directory fetch and connection diagnosis),
only degrades it.

# Collector

Collector recomputes the mirror gauges from the store every 15 seconds and
keeps the "store" component up to date as a side effect.
*/
package metrics
