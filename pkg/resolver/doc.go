/*
Package resolver reaches the upstream panel through a network path that may
be unreliable or actively blocked by an edge security layer.

A Resolver holds an ordered list of Strategy values:

	standard     browser-like request with the bearer credential
	edge-bypass  standard request plus an edge bypass token and zone id
	direct-ip    dials a fixed origin IP, keeps Host and SNI, relaxes TLS
	proxy        relays through an http, https or socks5 proxy

Do runs up to MaxRetries rounds. Inside a round every strategy is tried in
order and the first success is returned at once. Rounds are separated by an
exponential wait of 1s, 2s, 4s and so on; strategies inside a round are never
separated by a wait. Each attempt has its own timeout, and a timed out
attempt only fails that strategy.

An auth failure (401, or 403 without perimeter markers) is returned
immediately as an *Error because retrying the same credential cannot help.
When every combination fails the caller receives one *ExhaustedError that
wraps the last underlying *Error.

Diagnose runs each strategy exactly once for operator troubleshooting and is
never used for directory fetches.
*/
package resolver
