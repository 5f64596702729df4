/*
Package api implements the panelsync HTTP API.

The server exposes the mirror, triggers reconciliation, forwards power
signals to the upstream panel and serves live metrics gathered by the
poller. All bodies are JSON.

# Routes

	POST /api/sync                     reconcile (body: panelUrl, apiKey, demo)
	GET  /api/sync/last                last recorded sync (?panel=URL)
	GET  /api/servers                  mirrored servers sorted by identifier
	GET  /api/servers/{id}             one mirrored server
	POST /api/servers/{id}/power       send start, stop, restart or kill
	GET  /api/servers/{id}/live        live snapshot of one server
	GET  /api/live                     live snapshots of every running server
	GET  /api/diagnostics/connection   probe every connection strategy once
	GET  /ws/events                    websocket event stream (?type=prefix)
	GET  /health, /ready               liveness and readiness
	GET  /health/components            component health
	GET  /metrics                      Prometheus metrics

# Errors

Failed requests return an ErrorResponse:

	{"error": "...", "kind": "perimeter_blocked", "guidance": "..."}

Kinds map to statuses as follows: invalid_request 400, not_found 404,
sync_in_progress 409, upstream_auth, perimeter_blocked and
upstream_unreachable 502, internal 500. Guidance is only set when the
operator can act on it, such as a rejected API key or an edge firewall
answering in place of the panel.

Readiness only depends on the local store. An unreachable panel leaves the
API serving the last mirrored state.
*/
package api
