/*
Package log provides structured logging for panelsync using zerolog.

A single package-level zerolog.Logger is configured once at startup with Init
and shared by every component. Components derive child loggers that carry a
stable field so log lines can be filtered by subsystem:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("reconciler")
	logger.Info().
		Str("panel_url", target.PanelURL).
		Int("created", result.Created).
		Msg("Sync completed")

Console output (human readable) is the default; JSON output is meant for log
shippers. Levels map directly onto zerolog's global level, so Debug lines cost
nothing when the level is info or higher.

Field conventions:

  - component: resolver, panel, reconciler, live, api, store
  - panel_url: upstream panel a sync or request targets
  - server_id: upstream server identifier
  - method:    connection strategy name (standard, edge-bypass, direct-ip, proxy)
*/
package log
