package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/panelsync/pkg/live"
	"github.com/cuemby/panelsync/pkg/panel"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PANELSYNC_PANEL_URL
const EnvPrefix = "PANELSYNC"

// Config is the complete daemon configuration
type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Panel    PanelConfig    `mapstructure:"panel" yaml:"panel"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Live     LiveConfig     `mapstructure:"live" yaml:"live"`
	Lock     LockConfig     `mapstructure:"lock" yaml:"lock"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type PanelConfig struct {
	URL                string        `mapstructure:"url" yaml:"url"`
	APIKey             string        `mapstructure:"api_key" yaml:"api_key"`
	ClientKey          string        `mapstructure:"client_key" yaml:"client_key"`
	PerPage            int           `mapstructure:"per_page" yaml:"per_page"`
	ProbePath          string        `mapstructure:"probe_path" yaml:"probe_path"`
	SyncInterval       time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	RateLimit          float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst          int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	PersistentKeywords []string      `mapstructure:"persistent_keywords" yaml:"persistent_keywords"`
}

type ResolverConfig struct {
	MaxRetries int              `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout    time.Duration    `mapstructure:"timeout" yaml:"timeout"`
	Standard   bool             `mapstructure:"standard" yaml:"standard"`
	EdgeBypass EdgeBypassConfig `mapstructure:"edge_bypass" yaml:"edge_bypass"`
	DirectIP   DirectIPConfig   `mapstructure:"direct_ip" yaml:"direct_ip"`
	Proxy      ProxyConfig      `mapstructure:"proxy" yaml:"proxy"`
}

type EdgeBypassConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Token       string `mapstructure:"token" yaml:"token"`
	TokenHeader string `mapstructure:"token_header" yaml:"token_header"`
	ZoneID      string `mapstructure:"zone_id" yaml:"zone_id"`
	APIURL      string `mapstructure:"api_url" yaml:"api_url"`
	APIToken    string `mapstructure:"api_token" yaml:"api_token"`
}

type DirectIPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	IP      string `mapstructure:"ip" yaml:"ip"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

type LiveConfig struct {
	Enabled     bool              `mapstructure:"enabled" yaml:"enabled"`
	Interval    time.Duration     `mapstructure:"interval" yaml:"interval"`
	Concurrency int               `mapstructure:"concurrency" yaml:"concurrency"`
	Seeds       map[string]string `mapstructure:"seeds" yaml:"seeds"`
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// flagKeys maps command line flag names to configuration keys
var flagKeys = map[string]string{
	"api-addr":       "api.addr",
	"log-level":      "log.level",
	"log-json":       "log.json",
	"storage-driver": "storage.driver",
	"data-dir":       "storage.data_dir",
	"panel-url":      "panel.url",
	"api-key":        "panel.api_key",
	"client-key":     "panel.client_key",
	"sync-interval":  "panel.sync_interval",
	"lock-driver":    "lock.driver",
	"redis-addr":     "lock.redis_addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.addr", "127.0.0.1:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.data_dir", "./panelsync-data")
	v.SetDefault("storage.sqlite_path", "")

	v.SetDefault("panel.url", "")
	v.SetDefault("panel.api_key", "")
	v.SetDefault("panel.client_key", "")
	v.SetDefault("panel.per_page", panel.DefaultPerPage)
	v.SetDefault("panel.probe_path", panel.DefaultProbePath)
	v.SetDefault("panel.sync_interval", 0)
	v.SetDefault("panel.rate_limit", 4.0)
	v.SetDefault("panel.rate_burst", 8)
	v.SetDefault("panel.persistent_keywords", panel.DefaultPersistentKeywords)

	v.SetDefault("resolver.max_retries", resolver.DefaultMaxRetries)
	v.SetDefault("resolver.timeout", resolver.DefaultTimeout)
	v.SetDefault("resolver.standard", true)
	v.SetDefault("resolver.edge_bypass.enabled", false)
	v.SetDefault("resolver.edge_bypass.token", "")
	v.SetDefault("resolver.edge_bypass.token_header", resolver.DefaultEdgeTokenHeader)
	v.SetDefault("resolver.edge_bypass.zone_id", "")
	v.SetDefault("resolver.edge_bypass.api_url", resolver.DefaultEdgeAPI)
	v.SetDefault("resolver.edge_bypass.api_token", "")
	v.SetDefault("resolver.direct_ip.enabled", false)
	v.SetDefault("resolver.direct_ip.ip", "")
	v.SetDefault("resolver.direct_ip.port", 0)
	v.SetDefault("resolver.proxy.enabled", false)
	v.SetDefault("resolver.proxy.url", "")

	v.SetDefault("live.enabled", true)
	v.SetDefault("live.interval", live.DefaultInterval)
	v.SetDefault("live.concurrency", live.DefaultConcurrency)
	v.SetDefault("live.seeds", map[string]string{})

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", 5*time.Minute)
}

// Load layers defaults, the YAML file, PANELSYNC_* environment variables and
// flags, in increasing priority. An empty path searches for panelsync.yaml
// in the working directory and /etc/panelsync; a missing file is not an error
// unless path was given explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("panelsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/panelsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.API.Addr != "", "api.addr is required")

	check(c.Storage.Driver == "bolt" || c.Storage.Driver == "sqlite",
		"storage.driver must be bolt or sqlite, got %q", c.Storage.Driver)
	check(c.Storage.DataDir != "", "storage.data_dir is required")

	if c.Panel.URL != "" {
		_, err := panel.NormalizeURL(c.Panel.URL)
		check(err == nil, "panel.url: %v", err)
		check(c.Panel.APIKey != "", "panel.api_key is required when panel.url is set")
	}
	check(c.Panel.PerPage > 0, "panel.per_page must be positive")
	check(c.Panel.SyncInterval >= 0, "panel.sync_interval must not be negative")
	check(c.Panel.RateLimit >= 0, "panel.rate_limit must not be negative")
	check(c.Panel.SyncInterval == 0 || (c.Panel.URL != "" && c.Panel.APIKey != ""),
		"panel.sync_interval requires panel.url and panel.api_key")

	r := c.Resolver
	check(r.MaxRetries >= 1, "resolver.max_retries must be at least 1")
	check(r.Timeout > 0, "resolver.timeout must be positive")
	check(r.Standard || r.EdgeBypass.Enabled || r.DirectIP.Enabled || r.Proxy.Enabled,
		"at least one resolver strategy must be enabled")
	check(!r.EdgeBypass.Enabled || r.EdgeBypass.Token != "", "resolver.edge_bypass.token is required when enabled")
	check(!r.DirectIP.Enabled || net.ParseIP(r.DirectIP.IP) != nil, "resolver.direct_ip.ip must be a valid IP address")
	check(r.DirectIP.Port >= 0 && r.DirectIP.Port <= 65535, "resolver.direct_ip.port out of range")
	check(!r.Proxy.Enabled || r.Proxy.URL != "", "resolver.proxy.url is required when enabled")

	if c.Live.Enabled {
		check(c.Live.Interval > 0, "live.interval must be positive")
		check(c.Live.Concurrency > 0, "live.concurrency must be positive")
	}
	_, err := live.ParseSeeds(c.Live.Seeds)
	check(err == nil, "live.seeds: %v", err)

	check(c.Lock.Driver == "local" || c.Lock.Driver == "redis",
		"lock.driver must be local or redis, got %q", c.Lock.Driver)
	check(c.Lock.Driver != "redis" || c.Lock.RedisAddr != "", "lock.redis_addr is required for the redis lock")

	return errors.Join(errs...)
}

// ResolverSettings converts the resolver section into resolver.Config
func (c *Config) ResolverSettings() resolver.Config {
	r := c.Resolver
	out := resolver.Config{
		MaxRetries: r.MaxRetries,
		Timeout:    r.Timeout,
		Standard:   r.Standard,
	}
	if r.EdgeBypass.Enabled {
		out.EdgeBypass = &resolver.EdgeBypassConfig{
			Token:       r.EdgeBypass.Token,
			TokenHeader: r.EdgeBypass.TokenHeader,
			ZoneID:      r.EdgeBypass.ZoneID,
			APIURL:      r.EdgeBypass.APIURL,
			APIToken:    r.EdgeBypass.APIToken,
		}
	}
	if r.DirectIP.Enabled {
		out.DirectIP = &resolver.DirectIPConfig{IP: r.DirectIP.IP, Port: r.DirectIP.Port}
	}
	if r.Proxy.Enabled {
		out.Proxy = &resolver.ProxyConfig{URL: r.Proxy.URL}
	}
	return out
}

// PanelSettings returns the panel client configuration for panelURL and apiKey,
// falling back to the configured panel when they are empty
func (c *Config) PanelSettings(panelURL, apiKey string) panel.Config {
	cfg := panel.Config{
		URL:       c.Panel.URL,
		APIKey:    c.Panel.APIKey,
		ClientKey: c.Panel.ClientKey,
		PerPage:   c.Panel.PerPage,
		ProbePath: c.Panel.ProbePath,
		RateLimit: c.Panel.RateLimit,
		RateBurst: c.Panel.RateBurst,
	}
	if panelURL != "" {
		cfg.URL = panelURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		if panelURL != "" {
			cfg.ClientKey = ""
		}
	}
	return cfg
}

const redacted = "********"

// Redacted returns a copy with credentials masked, safe to print
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Panel.APIKey)
	mask(&out.Panel.ClientKey)
	mask(&out.Resolver.EdgeBypass.Token)
	mask(&out.Resolver.EdgeBypass.APIToken)
	mask(&out.Lock.RedisPassword)

	if u, err := url.Parse(out.Resolver.Proxy.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			out.Resolver.Proxy.URL = u.String()
		}
	}
	return &out
}
