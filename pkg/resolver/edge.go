package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultEdgeTokenHeader carries the edge-bypass secret
	DefaultEdgeTokenHeader = "X-Edge-Bypass-Token"

	// EdgeZoneHeader carries the edge zone identifier
	EdgeZoneHeader = "X-Edge-Zone-Id"

	// DefaultEdgeAPI is the zone lookup API base URL
	DefaultEdgeAPI = "https://api.cloudflare.com/client/v4"
)

// EdgeBypassConfig configures the edge-bypass strategy
type EdgeBypassConfig struct {
	Token       string
	TokenHeader string
	ZoneID      string
	APIURL      string
	APIToken    string
}

// NewEdgeBypass creates a strategy that presents an edge-bypass token. When
// no zone id is configured but an API token is, the zone id is looked up
// from the request host once and cached for the life of the process.
func NewEdgeBypass(cfg EdgeBypassConfig) (Strategy, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("edge-bypass: token is required")
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultEdgeTokenHeader
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultEdgeAPI
	}

	var zones *zoneLookup
	if cfg.ZoneID == "" && cfg.APIToken != "" {
		zones = newZoneLookup(cfg.APIURL, cfg.APIToken)
	}

	s := &httpStrategy{
		method: MethodEdgeBypass,
		client: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
	}
	s.decorate = func(ctx context.Context, req *http.Request) *Error {
		req.Header.Set(cfg.TokenHeader, cfg.Token)

		zoneID := cfg.ZoneID
		if zones != nil {
			id, err := zones.lookup(ctx, req.URL.Hostname())
			if err != nil {
				return classifyTransport(ctx, MethodEdgeBypass, fmt.Errorf("zone lookup: %w", err))
			}
			zoneID = id
		}
		if zoneID != "" {
			req.Header.Set(EdgeZoneHeader, zoneID)
		}
		return nil
	}
	return s, nil
}

// zoneLookup resolves and caches edge zone ids by apex domain
type zoneLookup struct {
	apiURL   string
	apiToken string
	client   *http.Client

	mu    sync.Mutex
	zones map[string]string
	group singleflight.Group
}

func newZoneLookup(apiURL, apiToken string) *zoneLookup {
	return &zoneLookup{
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		zones:    make(map[string]string),
	}
}

func (z *zoneLookup) lookup(ctx context.Context, host string) (string, error) {
	apex := apexDomain(host)

	z.mu.Lock()
	id, ok := z.zones[apex]
	z.mu.Unlock()
	if ok {
		return id, nil
	}

	// Failed lookups are not cached so the next attempt tries again
	v, err, _ := z.group.Do(apex, func() (any, error) {
		id, err := z.fetch(ctx, apex)
		if err != nil {
			return "", err
		}
		z.mu.Lock()
		z.zones[apex] = id
		z.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (z *zoneLookup) fetch(ctx context.Context, apex string) (string, error) {
	endpoint := z.apiURL + "/zones?name=" + url.QueryEscape(apex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+z.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := z.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("zone API returned HTTP %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("zone API returned invalid JSON")
	}

	id := gjson.GetBytes(body, "result.0.id").String()
	if id == "" {
		return "", fmt.Errorf("no zone found for %s", apex)
	}
	return id, nil
}

// apexDomain reduces a host name to its registrable domain
func apexDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	if apex, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return apex
	}
	return host
}
