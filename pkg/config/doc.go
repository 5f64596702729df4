// Package config loads daemon configuration with viper from defaults, an
// optional panelsync.yaml, PANELSYNC_* environment variables and command
// line flags, in that order of increasing priority.
//
// Keys under live.seeds are lowercased by the loader, so seeded server
// identifiers must be lowercase.
package config
