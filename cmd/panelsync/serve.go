package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/panelsync/pkg/api"
	"github.com/cuemby/panelsync/pkg/config"
	"github.com/cuemby/panelsync/pkg/demo"
	"github.com/cuemby/panelsync/pkg/events"
	"github.com/cuemby/panelsync/pkg/live"
	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/panel"
	"github.com/cuemby/panelsync/pkg/reconciler"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/storage"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the panelsync daemon",
	Long: `Run the panelsync daemon: the HTTP API, the optional periodic sync
loop and the live metrics poller.

Configuration is read from panelsync.yaml, PANELSYNC_* environment
variables and the flags below, in increasing priority.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("api-addr", "127.0.0.1:8080", "Address for the HTTP API")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Bool("log-json", false, "Log as JSON")
	f.String("storage-driver", "bolt", "Mirror store driver (bolt, sqlite)")
	f.String("data-dir", "./panelsync-data", "Data directory for the mirror store")
	f.String("panel-url", "", "Panel base URL")
	f.String("api-key", "", "Panel application API key")
	f.String("client-key", "", "Panel client API key for power and resource calls")
	f.Duration("sync-interval", 0, "Periodic sync interval (0 disables)")
	f.String("lock-driver", "local", "Sync lock driver (local, redis)")
	f.String("redis-addr", "", "Redis address for the redis lock driver")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stdout,
	})
	logger := log.WithComponent("main")
	metrics.SetVersion(Version)

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		metrics.RegisterComponent("store", false, err.Error())
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, cfg.Storage.Driver)

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	classifier := panel.NewStatusClassifier(cfg.Panel.PersistentKeywords)
	engine := reconciler.NewEngine(store, locker,
		reconciler.WithBroker(broker),
		reconciler.WithDemo(demo.NewFetcher(classifier)),
	)

	res, err := resolver.FromConfig(cfg.ResolverSettings())
	if err != nil {
		return fmt.Errorf("failed to build resolver: %w", err)
	}
	logger.Info().Strs("strategies", methodNames(res.Methods())).Msg("Connection strategies configured")

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	seeds, err := live.ParseSeeds(cfg.Live.Seeds)
	if err != nil {
		return err
	}
	cache := live.NewCache(seeds)

	// The configured panel keeps one client so every caller shares its
	// rate limiter
	var defaultPanel *panel.Client
	if cfg.Panel.URL != "" {
		defaultPanel, err = panel.NewClient(cfg.PanelSettings("", ""), res, classifier)
		if err != nil {
			return fmt.Errorf("failed to create panel client: %w", err)
		}
		metrics.RegisterComponent("panel", true, defaultPanel.URL())
	}

	panels := func(panelURL, apiKey string) (api.PanelClient, error) {
		if panelURL == "" && apiKey == "" && defaultPanel != nil {
			return defaultPanel, nil
		}
		c, err := panel.NewClient(cfg.PanelSettings(panelURL, apiKey), res, classifier)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	if defaultPanel != nil && cfg.Live.Enabled {
		lister := panelServers{store: store, panelURL: defaultPanel.URL()}
		poller := live.NewPoller(cache, lister, defaultPanel, broker, cfg.Live.Interval, cfg.Live.Concurrency)
		poller.Start()
		defer poller.Stop()
		logger.Info().Dur("interval", cfg.Live.Interval).Msg("Live poller started")
	}

	if defaultPanel != nil && cfg.Panel.SyncInterval > 0 {
		loop := reconciler.NewLoop(engine, reconciler.Target{PanelURL: defaultPanel.URL(), Fetcher: defaultPanel}, cfg.Panel.SyncInterval)
		loop.Start()
		defer loop.Stop()
		logger.Info().Dur("interval", cfg.Panel.SyncInterval).Msg("Sync loop started")
	}

	server := api.NewServer(api.Deps{
		Store:   store,
		Engine:  engine,
		Panels:  panels,
		Cache:   cache,
		Broker:  broker,
		Version: Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown")
	}
	return nil
}

// newLocker returns the sync lock for the configured driver and a cleanup
func newLocker(cfg *config.Config) (reconciler.Locker, func(), error) {
	if cfg.Lock.Driver != "redis" {
		return reconciler.NewLocalLocker(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Lock.RedisAddr, err)
	}
	return reconciler.NewRedisLocker(rdb, cfg.Lock.TTL), func() { _ = rdb.Close() }, nil
}

// panelServers lists the mirrored servers owned by one panel, so the live
// poller never asks a panel about servers it does not manage
type panelServers struct {
	store    storage.Store
	panelURL string
}

func (p panelServers) ListServers() ([]*types.MirroredServer, error) {
	all, err := p.store.ListServers()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, srv := range all {
		if srv.PanelURL == p.panelURL {
			out = append(out, srv)
		}
	}
	return out, nil
}

func methodNames(methods []resolver.Method) []string {
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = string(m)
	}
	return out
}
