package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/panelsync/pkg/resolver"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	r, err := resolver.New([]resolver.Strategy{resolver.NewStandard()}, resolver.WithMaxRetries(1))
	require.NoError(t, err)

	cfg.URL = url
	if cfg.APIKey == "" {
		cfg.APIKey = "ptla_app"
	}
	c, err := NewClient(cfg, r, NewStatusClassifier(DefaultPersistentKeywords))
	require.NoError(t, err)
	return c
}

func serverJSON(identifier, name, status string) string {
	return fmt.Sprintf(`{"object":"server","attributes":{"identifier":%q,"name":%q,"status":%q}}`, identifier, name, status)
}

func TestFetchServers_Paginated(t *testing.T) {
	pages := map[string]string{
		"1": `{"data":[` + serverJSON("A", "Survival", "running") + `,` + serverJSON("B", "Roleplay Alpha", "stopped") + `],
			"meta":{"pagination":{"current_page":1,"total_pages":2}}}`,
		"2": `{"data":[` + serverJSON("C", "Creative", "stopped") + `,{"attributes":{"name":"broken"}},` +
			serverJSON("A", "Survival renamed", "running") + `],
			"meta":{"pagination":{"current_page":2,"total_pages":2}}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/application/servers", r.URL.Path)
		assert.Equal(t, "Bearer ptla_app", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(pages[r.URL.Query().Get("page")]))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/", Config{PerPage: 2})
	servers, err := c.FetchServers(context.Background())
	require.NoError(t, err)

	require.Len(t, servers, 3)
	assert.Equal(t, "A", servers[0].Identifier)
	assert.Equal(t, "Survival renamed", servers[0].Name, "last duplicate wins")
	assert.Equal(t, types.StatusLive, servers[1].Status, "persistent keyword overrides stopped")
	assert.Equal(t, types.StatusOffline, servers[2].Status)
}

func TestFetchServers_WithoutPaginationMeta(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"data":[` + serverJSON("A", "a", "") + `,` + serverJSON("B", "b", "") + `]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[` + serverJSON("C", "c", "") + `]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{PerPage: 2})
	servers, err := c.FetchServers(context.Background())
	require.NoError(t, err)
	assert.Len(t, servers, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchServers_EndlessPaginationFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = fmt.Fprintf(w, `{"data":[%s],"meta":{"pagination":{"current_page":%d,"total_pages":%d}}}`,
			serverJSON(fmt.Sprintf("S%d", n), fmt.Sprintf("s%d", n), ""), n, n+1)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{PerPage: 1})
	c.maxPages = 3

	servers, err := c.FetchServers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more pages")
	assert.Nil(t, servers, "a truncated directory must never reach the sweep")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchServers_PageFailureFailsWholeFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[` + serverJSON("A", "a", "") + `],"meta":{"pagination":{"current_page":1,"total_pages":2}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	servers, err := c.FetchServers(context.Background())
	require.Error(t, err)
	assert.Nil(t, servers)

	var exhausted *resolver.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestFetchServers_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	_, err := c.FetchServers(context.Background())
	assert.True(t, resolver.IsAuth(err))
}

func TestFetchServers_UndecodablePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	_, err := c.FetchServers(context.Background())
	assert.ErrorContains(t, err, "no data array")
}

func TestResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/servers/1a7ce997/resources", r.URL.Path)
		assert.Equal(t, "Bearer ptlc_client", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"object":"stats","attributes":{
			"current_state":"running","is_suspended":false,
			"resources":{"memory_bytes":536870912,"cpu_absolute":37.5,"disk_bytes":1073741824,
				"network_rx_bytes":1000,"network_tx_bytes":2000}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{ClientKey: "ptlc_client"})
	usage, err := c.Resources(context.Background(), "1a7ce997")
	require.NoError(t, err)
	assert.Equal(t, "running", usage.State)
	assert.InDelta(t, 37.5, usage.CPUAbsolute, 0.001)
	assert.Equal(t, int64(536870912), usage.MemoryBytes)
	assert.Equal(t, int64(2000), usage.NetworkTxBytes)
}

func TestSendPower(t *testing.T) {
	var signal string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/client/servers/abc/power", r.URL.Path)
		assert.Equal(t, "Bearer ptla_app", r.Header.Get("Authorization"), "client key falls back to api key")
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		signal = body["signal"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	require.NoError(t, c.SendPower(context.Background(), "abc", "Restart"))
	assert.Equal(t, "restart", signal)
}

func TestSendPower_InvalidAction(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	err := c.SendPower(context.Background(), "abc", "explode")
	assert.ErrorIs(t, err, ErrInvalidPowerAction)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDiagnose_UsesProbePath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.RequestURI()
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{})
	reports := c.Diagnose(context.Background())
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Success)
	assert.Equal(t, resolver.MethodStandard, reports[0].Method)
	assert.Equal(t, DefaultProbePath, path)
}

func TestNewClient_Validation(t *testing.T) {
	r, err := resolver.New([]resolver.Strategy{resolver.NewStandard()})
	require.NoError(t, err)

	_, err = NewClient(Config{URL: "ftp://panel", APIKey: "k"}, r, StatusClassifier{})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "https://panel.example.com"}, r, StatusClassifier{})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "https://panel.example.com", APIKey: "k"}, nil, StatusClassifier{})
	assert.Error(t, err)

	c, err := NewClient(Config{URL: "https://panel.example.com/", APIKey: "k"}, r, StatusClassifier{})
	require.NoError(t, err)
	assert.Equal(t, "https://panel.example.com", c.URL())
}

func TestRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"attributes":{"current_state":"offline","resources":{}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, Config{RateLimit: 0.5, RateBurst: 1})

	_, err := c.Resources(context.Background(), "abc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Resources(ctx, "abc")
	assert.ErrorContains(t, err, "rate limit")
	assert.Equal(t, int32(1), hits.Load())
}
