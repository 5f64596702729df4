// Package live derives uptime and a recent resource snapshot for running
// servers, since the panel exposes no stable uptime counter.
//
// Per server identifier the Cache moves through
//
//	NoEntry -> Running(baseTime, seed) -> Running(advanced) -> NoEntry
//
// The first running observation creates the entry. Every later running
// observation recomputes uptime as seed + (now - baseTime), so uptime only
// grows and a missed poll changes nothing. The first non-running
// observation deletes the entry.
//
// The Poller lists the mirror on its own ticker, polls the panel's resource
// endpoint with bounded concurrency, and feeds the cache.
package live
