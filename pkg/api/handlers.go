package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/cuemby/panelsync/pkg/events"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/reconciler"
	"github.com/cuemby/panelsync/pkg/types"
)

// SyncRequest triggers a reconciliation. Empty PanelURL and APIKey select
// the configured panel.
type SyncRequest struct {
	PanelURL string `json:"panelUrl"`
	APIKey   string `json:"apiKey"`
	Demo     bool   `json:"demo"`
}

// PowerRequest carries a power signal
type PowerRequest struct {
	Action string `json:"action"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return invalid("invalid JSON body: " + err.Error())
	}
	return nil
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Demo {
		result, err := s.deps.Engine.SyncDemo(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	client, err := s.deps.Panels(req.PanelURL, req.APIKey)
	if err != nil {
		writeError(w, invalid(err.Error()))
		return
	}

	result, err := s.deps.Engine.Sync(r.Context(), reconciler.Target{PanelURL: client.URL(), Fetcher: client})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	panelURL := r.URL.Query().Get("panel")
	if panelURL == "" {
		client, err := s.deps.Panels("", "")
		if err != nil {
			writeError(w, invalid("panel query parameter is required: "+err.Error()))
			return
		}
		panelURL = client.URL()
	}

	result, err := s.deps.Store.LastSync(panelURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.deps.Store.ListServers()
	if err != nil {
		writeError(w, err)
		return
	}
	if servers == nil {
		servers = []*types.MirroredServer{}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Identifier < servers[j].Identifier })
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.deps.Store.FindByIdentifier(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req PowerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, ok := types.ParsePowerAction(req.Action); !ok {
		writeError(w, invalid("action must be one of start, stop, restart, kill"))
		return
	}

	srv, err := s.deps.Store.FindByIdentifier(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if srv.PanelURL == reconciler.DemoPanelURL {
		writeError(w, invalid("demo servers cannot receive power signals"))
		return
	}

	client, err := s.deps.Panels("", "")
	if err != nil {
		writeError(w, invalid(err.Error()))
		return
	}
	if client.URL() != srv.PanelURL {
		writeError(w, invalid("server belongs to "+srv.PanelURL+", which is not the configured panel"))
		return
	}

	if err := client.SendPower(r.Context(), id, req.Action); err != nil {
		writeError(w, err)
		return
	}

	s.deps.Broker.Publish(&events.Event{
		Type:     events.EventPowerSent,
		Message:  "power signal sent",
		Metadata: map[string]string{"server_id": id, "action": req.Action},
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "action": req.Action})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Cache.All())
}

func (s *Server) handleServerLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Store.FindByIdentifier(id); err != nil {
		writeError(w, err)
		return
	}

	snap, ok := s.deps.Cache.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"identifier": id, "running": false})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	client, err := s.deps.Panels("", "")
	if err != nil {
		writeError(w, invalid(err.Error()))
		return
	}

	reports := client.Diagnose(r.Context())

	working := 0
	for _, rep := range reports {
		if rep.Success {
			working++
		}
	}
	metrics.UpdateComponent("panel", working > 0, fmt.Sprintf("%d of %d strategies reachable", working, len(reports)))

	writeJSON(w, http.StatusOK, map[string]any{
		"panel_url":  client.URL(),
		"strategies": reports,
	})
}
