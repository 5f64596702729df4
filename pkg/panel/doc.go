// Package panel is the client for the upstream game server panel. It walks
// the paginated application directory, normalizes every server payload into
// a types.RemoteServer, and forwards per-server resource and power calls.
// All requests go through a resolver so blocked network paths fall back to
// alternative strategies.
package panel
