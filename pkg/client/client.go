package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/panelsync/pkg/live"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/types"
)

// APIError is a failed API call. Kind and Guidance are set when the server
// returned a structured error body.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Kind     string `json:"kind"`
	Guidance string `json:"guidance"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Kind != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	if e.Guidance != "" {
		msg += "\nhint: " + e.Guidance
	}
	return msg
}

// Client talks to a panelsync API server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// http://127.0.0.1:8080
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SyncOptions selects what to reconcile. The zero value syncs the
// configured panel.
type SyncOptions struct {
	PanelURL string `json:"panelUrl,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Demo     bool   `json:"demo,omitempty"`
}

// Sync triggers a reconciliation and waits for its result
func (c *Client) Sync(ctx context.Context, opts SyncOptions) (*types.SyncResult, error) {
	var result types.SyncResult
	if err := c.post(ctx, "/api/sync", opts, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LastSync returns the last recorded sync. An empty panelURL selects the
// configured panel.
func (c *Client) LastSync(ctx context.Context, panelURL string) (*types.SyncResult, error) {
	path := "/api/sync/last"
	if panelURL != "" {
		path += "?panel=" + url.QueryEscape(panelURL)
	}
	var result types.SyncResult
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListServers(ctx context.Context) ([]*types.MirroredServer, error) {
	var servers []*types.MirroredServer
	if err := c.get(ctx, "/api/servers", &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) GetServer(ctx context.Context, identifier string) (*types.MirroredServer, error) {
	var srv types.MirroredServer
	if err := c.get(ctx, "/api/servers/"+url.PathEscape(identifier), &srv); err != nil {
		return nil, err
	}
	return &srv, nil
}

// Power sends a power signal to a mirrored server
func (c *Client) Power(ctx context.Context, identifier, action string) error {
	body := map[string]string{"action": action}
	return c.post(ctx, "/api/servers/"+url.PathEscape(identifier)+"/power", body, nil)
}

// Live returns snapshots of every running server
func (c *Client) Live(ctx context.Context) ([]live.Snapshot, error) {
	var snaps []live.Snapshot
	if err := c.get(ctx, "/api/live", &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// ServerLive returns the live snapshot of one server. ok is false when the
// server is not running.
func (c *Client) ServerLive(ctx context.Context, identifier string) (snap *live.Snapshot, ok bool, err error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/servers/"+url.PathEscape(identifier)+"/live", &raw); err != nil {
		return nil, false, err
	}

	var probe struct {
		Running *bool `json:"running"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, err
	}
	if probe.Running != nil && !*probe.Running {
		return nil, false, nil
	}

	var s live.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

// Diagnosis is the result of probing every connection strategy
type Diagnosis struct {
	PanelURL   string            `json:"panel_url"`
	Strategies []resolver.Report `json:"strategies"`
}

func (c *Client) Diagnose(ctx context.Context) (*Diagnosis, error) {
	var d Diagnosis
	if err := c.get(ctx, "/api/diagnostics/connection", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

func (c *Client) post(ctx context.Context, path string, body any, target any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if target != nil {
		return json.NewDecoder(resp.Body).Decode(target)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
