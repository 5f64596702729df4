package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/panelsync/pkg/storage"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready body
type ReadyResponse struct {
	Ready     bool              `json:"ready"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// health serves liveness and readiness for the mirror
type health struct {
	store   storage.Store
	version string
	started time.Time
}

func newHealth(store storage.Store, version string) *health {
	if version == "" {
		version = "dev"
	}
	return &health{store: store, version: version, started: time.Now()}
}

// register adds /health and /ready to mux
func (h *health) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.live)
	mux.HandleFunc("GET /ready", h.ready)
}

// live answers 200 while the process can serve HTTP at all
func (h *health) live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// ready only depends on the mirror store being readable. Panel
// reachability is left out: without the panel the mirror still serves its
// last known state.
func (h *health) ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Ready:     true,
		Checks:    map[string]string{},
		Timestamp: time.Now(),
	}

	switch {
	case h.store == nil:
		resp.Ready = false
		resp.Checks["storage"] = "not initialized"
		resp.Message = "mirror store not initialized"
	default:
		servers, err := h.store.ListServers()
		if err != nil {
			resp.Ready = false
			resp.Checks["storage"] = "error: " + err.Error()
			resp.Message = "mirror store not readable"
		} else {
			resp.Checks["storage"] = fmt.Sprintf("ok (%d servers)", len(servers))
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
