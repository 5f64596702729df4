package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/panelsync/pkg/panel"
	"github.com/cuemby/panelsync/pkg/reconciler"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/storage"
)

// Error kinds reported to clients
const (
	KindInvalidRequest      = "invalid_request"
	KindNotFound            = "not_found"
	KindSyncInProgress      = "sync_in_progress"
	KindUpstreamAuth        = "upstream_auth"
	KindPerimeterBlocked    = "perimeter_blocked"
	KindUpstreamUnreachable = "upstream_unreachable"
	KindInternal            = "internal"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Guidance string `json:"guidance,omitempty"`
}

// badRequest marks client input errors
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error {
	return &badRequest{msg: msg}
}

// classify maps an error to an HTTP status, kind and operator guidance
func classify(err error) (int, string, string) {
	var br *badRequest
	var rerr *resolver.Error

	switch {
	case errors.As(err, &br), errors.Is(err, panel.ErrInvalidPowerAction):
		return http.StatusBadRequest, KindInvalidRequest, ""
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, KindNotFound, ""
	case errors.Is(err, reconciler.ErrSyncInProgress):
		return http.StatusConflict, KindSyncInProgress, ""
	case errors.As(err, &rerr):
		switch {
		case resolver.IsAuth(err):
			return http.StatusBadGateway, KindUpstreamAuth, rerr.Guidance()
		case rerr.Kind == resolver.KindPerimeter:
			return http.StatusBadGateway, KindPerimeterBlocked, rerr.Guidance()
		}
		return http.StatusBadGateway, KindUpstreamUnreachable, ""
	}

	var exhausted *resolver.ExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusBadGateway, KindUpstreamUnreachable, ""
	}
	return http.StatusInternalServerError, KindInternal, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind, guidance := classify(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind, Guidance: guidance})
}
