package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/panelsync/pkg/events"
	"github.com/cuemby/panelsync/pkg/live"
	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/reconciler"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/storage"
	"github.com/rs/zerolog"
)

// PanelClient is the subset of panel.Client the API drives
type PanelClient interface {
	reconciler.Fetcher
	URL() string
	SendPower(ctx context.Context, identifier, action string) error
	Diagnose(ctx context.Context) []resolver.Report
}

// PanelFactory builds a client for url and apiKey. Empty values select the
// configured default panel.
type PanelFactory func(url, apiKey string) (PanelClient, error)

// Deps are the collaborators served over HTTP
type Deps struct {
	Store   storage.Store
	Engine  *reconciler.Engine
	Panels  PanelFactory
	Cache   *live.Cache
	Broker  *events.Broker
	Version string
}

// Server exposes sync, mirror, power, live and diagnostics endpoints
type Server struct {
	deps   Deps
	health *health
	mux    *http.ServeMux
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		health: newHealth(deps.Store, deps.Version),
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	s.http = &http.Server{
		Handler:           cors(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.handle("POST /api/sync", s.handleSync)
	s.handle("GET /api/sync/last", s.handleLastSync)
	s.handle("GET /api/servers", s.handleListServers)
	s.handle("GET /api/servers/{id}", s.handleGetServer)
	s.handle("POST /api/servers/{id}/power", s.handlePower)
	s.handle("GET /api/servers/{id}/live", s.handleServerLive)
	s.handle("GET /api/live", s.handleLive)
	s.handle("GET /api/diagnostics/connection", s.handleDiagnostics)
	s.mux.HandleFunc("GET /ws/events", s.handleEvents)

	s.health.register(s.mux)
	s.mux.Handle("GET /health/components", metrics.HealthHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())

	return s
}

// handle registers an instrumented route
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, fn))
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RegisterComponent("api", false, err.Error())
		return err
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until Shutdown is called. A Shutdown that lands
// before Serve makes it return immediately.
func (s *Server) Serve(ln net.Listener) error {
	addr := ln.Addr().String()
	metrics.RegisterComponent("api", true, "listening on "+addr)
	s.logger.Info().Str("addr", addr).Msg("API server listening")

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent("api", false, err.Error())
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
