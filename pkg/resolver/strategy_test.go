package resolver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandard_SendsBrowserHeadersAndToken(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	res := NewStandard().Attempt(context.Background(), Request{URL: server.URL, Token: "ptla_key", ExpectJSON: true})

	require.True(t, res.Success, "unexpected failure: %v", res.Err)
	assert.Equal(t, MethodStandard, res.Method)
	assert.Equal(t, "Bearer ptla_key", got.Get("Authorization"))
	assert.Contains(t, got.Get("User-Agent"), "Mozilla/5.0")
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.NotEmpty(t, got.Get("Accept-Language"))
}

func TestStandard_Classification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		body       string
		expectJSON bool
		wantKind   Kind
	}{
		{name: "unauthorized", status: 401, body: `{"errors":[{"detail":"bad key"}]}`, wantKind: KindAuth},
		{name: "unauthorized behind edge", status: 401, headers: map[string]string{"Cf-Ray": "abc"}, wantKind: KindAuth},
		{name: "forbidden from panel", status: 403, body: `{"errors":[]}`, wantKind: KindAuth},
		{name: "edge challenge", status: 403, headers: map[string]string{"Cf-Ray": "abc", "Content-Type": "text/html"}, body: "<title>Just a moment...</title>", wantKind: KindPerimeter},
		{name: "edge mitigated", status: 403, headers: map[string]string{"Cf-Mitigated": "challenge"}, wantKind: KindPerimeter},
		{name: "firewall rule", status: 403, body: "error code: 1020", wantKind: KindPerimeter},
		{name: "forbidden from unknown proxy", status: 403, headers: map[string]string{"Content-Type": "text/html"}, body: "<h1>Forbidden</h1>", wantKind: KindPerimeter},
		{name: "forbidden json without errors", status: 403, body: `{"message":"blocked"}`, wantKind: KindPerimeter},
		{name: "origin unreachable", status: 522, wantKind: KindPerimeter},
		{name: "server error", status: 500, body: `{"message":"boom"}`, wantKind: KindStatus},
		{name: "not found", status: 404, wantKind: KindStatus},
		{name: "invalid json", status: 200, body: "<html>", expectJSON: true, wantKind: KindDecode},
		{name: "challenge with 200", status: 200, body: `<div id="challenge-platform">`, expectJSON: true, wantKind: KindPerimeter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			res := NewStandard().Attempt(context.Background(), Request{URL: server.URL, ExpectJSON: tt.expectJSON})
			require.False(t, res.Success)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.wantKind, res.Err.Kind)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestStandard_EmptyBodyAcceptedWithoutJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	res := NewStandard().Attempt(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   []byte(`{"signal":"start"}`),
	})
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusNoContent, res.Status)
}

func TestStandard_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	res := NewStandard().Attempt(context.Background(), Request{URL: addr})
	require.False(t, res.Success)
	assert.Equal(t, KindNetwork, res.Err.Kind)
}

func TestEdgeBypass_StaticZone(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	s, err := NewEdgeBypass(EdgeBypassConfig{Token: "bypass", ZoneID: "zone-1"})
	require.NoError(t, err)

	res := s.Attempt(context.Background(), Request{URL: server.URL})
	require.True(t, res.Success)
	assert.Equal(t, MethodEdgeBypass, res.Method)
	assert.Equal(t, "bypass", got.Get(DefaultEdgeTokenHeader))
	assert.Equal(t, "zone-1", got.Get(EdgeZoneHeader))
}

func TestEdgeBypass_ZoneLookupCached(t *testing.T) {
	var lookups atomic.Int32
	edgeAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal(t, "/zones", r.URL.Path)
		assert.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"zone-` + r.URL.Query().Get("name") + `"}]}`))
	}))
	defer edgeAPI.Close()

	var zone string
	panel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zone = r.Header.Get(EdgeZoneHeader)
		assert.Equal(t, "tok", r.Header.Get("X-Custom-Bypass"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer panel.Close()

	s, err := NewEdgeBypass(EdgeBypassConfig{
		Token:       "tok",
		TokenHeader: "X-Custom-Bypass",
		APIURL:      edgeAPI.URL,
		APIToken:    "api-token",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res := s.Attempt(context.Background(), Request{URL: panel.URL})
		require.True(t, res.Success, "attempt %d: %v", i, res.Err)
	}
	assert.Equal(t, "zone-127.0.0.1", zone)
	assert.Equal(t, int32(1), lookups.Load())
}

func TestEdgeBypass_FailedLookupNotCached(t *testing.T) {
	var lookups atomic.Int32
	edgeAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lookups.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"zone-ok"}]}`))
	}))
	defer edgeAPI.Close()

	panel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer panel.Close()

	s, err := NewEdgeBypass(EdgeBypassConfig{Token: "tok", APIURL: edgeAPI.URL, APIToken: "t"})
	require.NoError(t, err)

	first := s.Attempt(context.Background(), Request{URL: panel.URL})
	assert.False(t, first.Success)
	assert.Equal(t, KindNetwork, first.Err.Kind)

	second := s.Attempt(context.Background(), Request{URL: panel.URL})
	assert.True(t, second.Success)
	assert.Equal(t, int32(2), lookups.Load())
}

func TestDirectIP_DialsConfiguredAddress(t *testing.T) {
	var host string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host = r.Host
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	s, err := NewDirectIP("127.0.0.1", 0)
	require.NoError(t, err)

	// The host name does not resolve; only the direct dial can reach it
	res := s.Attempt(context.Background(), Request{URL: "http://panel.invalid:" + port + "/api"})
	require.True(t, res.Success, "unexpected failure: %v", res.Err)
	assert.Equal(t, "panel.invalid:"+port, host)
}

func TestProxy_RelaysRequest(t *testing.T) {
	var target string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target = r.URL.String()
		_, _ = w.Write([]byte(`{"via":"proxy"}`))
	}))
	defer proxy.Close()

	s, err := NewProxy(proxy.URL)
	require.NoError(t, err)

	res := s.Attempt(context.Background(), Request{URL: "http://panel.invalid/api/application/servers", ExpectJSON: true})
	require.True(t, res.Success, "unexpected failure: %v", res.Err)
	assert.Equal(t, MethodProxy, res.Method)
	assert.Equal(t, "http://panel.invalid/api/application/servers", target)
}

func TestApexDomain(t *testing.T) {
	tests := map[string]string{
		"panel.example.com":       "example.com",
		"a.b.panel.example.co.uk": "example.co.uk",
		"example.com:8443":        "example.com",
		"127.0.0.1":               "127.0.0.1",
		"Panel.Example.COM.":      "example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, apexDomain(in), in)
	}
}
