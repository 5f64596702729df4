package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultPerPage is the directory page size requested from the panel
	DefaultPerPage = 50

	// DefaultProbePath is the lightweight endpoint used by diagnostics
	DefaultProbePath = "/api/application/servers?per_page=1"

	// maxPages stops a panel that keeps reporting more pages
	maxPages = 10000
)

// ErrInvalidPowerAction is returned for a signal other than start, stop, restart or kill
var ErrInvalidPowerAction = errors.New("invalid power action")

// Resolver is the connection layer the client sends every request through
type Resolver interface {
	Do(ctx context.Context, req resolver.Request) (*resolver.Result, error)
	Diagnose(ctx context.Context, req resolver.Request) []resolver.Report
}

// Config identifies a panel and its credentials
type Config struct {
	URL string

	// APIKey is the application API key used for the directory
	APIKey string

	// ClientKey is used for per-server client endpoints. Defaults to APIKey.
	ClientKey string

	PerPage   int
	ProbePath string

	// RateLimit caps requests per second sent to the panel; 0 disables it.
	// Every request waits for a token, including each page of a directory
	// fetch and each live resource poll.
	RateLimit float64
	RateBurst int
}

// Client talks to one panel
type Client struct {
	baseURL    string
	apiKey     string
	clientKey  string
	perPage    int
	maxPages   int
	probePath  string
	resolver   Resolver
	limiter    *rate.Limiter
	classifier StatusClassifier
	logger     zerolog.Logger
}

// NewClient creates a panel client
func NewClient(cfg Config, r Resolver, classifier StatusClassifier) (*Client, error) {
	base, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("panel api key is required")
	}
	if r == nil {
		return nil, errors.New("panel resolver is required")
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		clientKey:  cfg.ClientKey,
		perPage:    cfg.PerPage,
		maxPages:   maxPages,
		probePath:  cfg.ProbePath,
		resolver:   r,
		classifier: classifier,
		logger:     log.WithPanel(base),
	}
	if c.clientKey == "" {
		c.clientKey = c.apiKey
	}
	if c.perPage <= 0 {
		c.perPage = DefaultPerPage
	}
	if c.probePath == "" {
		c.probePath = DefaultProbePath
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// NormalizeURL validates a panel base URL and strips any trailing slash
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid panel url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid panel url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid panel url %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// URL returns the normalized panel base URL
func (c *Client) URL() string {
	return c.baseURL
}

// FetchServers retrieves every server from the panel, walking all pages.
// Any page failure fails the whole fetch; partial directories are never
// returned. Duplicate identifiers keep the last occurrence.
func (c *Client) FetchServers(ctx context.Context) ([]types.RemoteServer, error) {
	var servers []types.RemoteServer
	index := make(map[string]int)
	skipped := 0

	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("fetch servers: panel still reports more pages after %d", c.maxPages)
		}
		path := fmt.Sprintf("/api/application/servers?page=%d&per_page=%d", page, c.perPage)
		res, err := c.do(ctx, resolver.Request{
			Method:     http.MethodGet,
			URL:        c.baseURL + path,
			Token:      c.apiKey,
			ExpectJSON: true,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch servers page %d: %w", page, err)
		}

		data := gjson.GetBytes(res.Body, "data")
		if !data.IsArray() {
			return nil, fmt.Errorf("fetch servers page %d: response has no data array", page)
		}

		items := data.Array()
		for _, item := range items {
			attrs := item
			if a := item.Get("attributes"); a.IsObject() {
				attrs = a
			}

			srv, ok := normalizeServer(attrs, c.classifier)
			if !ok {
				skipped++
				continue
			}
			if i, dup := index[srv.Identifier]; dup {
				servers[i] = srv
				continue
			}
			index[srv.Identifier] = len(servers)
			servers = append(servers, srv)
		}

		if lastPage(res.Body, page, len(items), c.perPage) {
			break
		}
	}

	if skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Msg("Skipped servers without identifier or uuid")
	}
	c.logger.Debug().Int("count", len(servers)).Msg("Fetched server directory")
	return servers, nil
}

// lastPage uses pagination metadata when present, otherwise a short page
func lastPage(body []byte, page, count, perPage int) bool {
	pagination := gjson.GetBytes(body, "meta.pagination")
	if total := pagination.Get("total_pages"); total.Exists() {
		current := int(pagination.Get("current_page").Int())
		if current < page {
			current = page
		}
		return current >= int(total.Int())
	}
	return count == 0 || count < perPage
}

// Resources reads the live resource usage of one server
func (c *Client) Resources(ctx context.Context, identifier string) (*types.ResourceUsage, error) {
	res, err := c.do(ctx, resolver.Request{
		Method:     http.MethodGet,
		URL:        c.serverURL(identifier, "resources"),
		Token:      c.clientKey,
		ExpectJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("resources for %s: %w", identifier, err)
	}

	attrs := gjson.GetBytes(res.Body, "attributes")
	if !attrs.IsObject() {
		return nil, fmt.Errorf("resources for %s: response has no attributes", identifier)
	}
	usage := normalizeUsage(attrs)
	return &usage, nil
}

// SendPower forwards a power signal for one server. Nothing is mutated locally.
func (c *Client) SendPower(ctx context.Context, identifier, action string) error {
	signal, ok := types.ParsePowerAction(action)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPowerAction, action)
	}

	body, err := json.Marshal(map[string]string{"signal": string(signal)})
	if err != nil {
		return err
	}

	_, err = c.do(ctx, resolver.Request{
		Method: http.MethodPost,
		URL:    c.serverURL(identifier, "power"),
		Token:  c.clientKey,
		Body:   body,
	})
	if err != nil {
		metrics.PowerActionsTotal.WithLabelValues(string(signal), "failure").Inc()
		return fmt.Errorf("power %s for %s: %w", signal, identifier, err)
	}

	metrics.PowerActionsTotal.WithLabelValues(string(signal), "success").Inc()
	c.logger.Info().Str("server_id", identifier).Str("action", string(signal)).Msg("Power signal sent")
	return nil
}

// Diagnose tests every connection strategy once against the probe endpoint
func (c *Client) Diagnose(ctx context.Context) []resolver.Report {
	if err := c.wait(ctx); err != nil {
		return nil
	}
	return c.resolver.Diagnose(ctx, resolver.Request{
		Method:     http.MethodGet,
		URL:        c.baseURL + c.probePath,
		Token:      c.apiKey,
		ExpectJSON: true,
	})
}

// do sends req through the resolver once the rate limiter allows it
func (c *Client) do(ctx context.Context, req resolver.Request) (*resolver.Result, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.resolver.Do(ctx, req)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func (c *Client) serverURL(identifier, endpoint string) string {
	return c.baseURL + "/api/client/servers/" + url.PathEscape(identifier) + "/" + endpoint
}
