package resolver

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Method names a connection strategy
type Method string

const (
	MethodStandard   Method = "standard"
	MethodEdgeBypass Method = "edge-bypass"
	MethodDirectIP   Method = "direct-ip"
	MethodProxy      Method = "proxy"
)

// maxBodySize caps how much of an upstream response is read
const maxBodySize = 32 << 20

// Request describes one upstream call
type Request struct {
	Method     string
	URL        string
	Token      string
	Body       []byte
	ExpectJSON bool
}

// Result is the outcome of a single strategy attempt
type Result struct {
	Success   bool
	Method    Method
	Status    int
	Body      []byte
	Err       *Error
	Latency   time.Duration
	CheckedAt time.Time
}

// Strategy is one technique for reaching the panel
type Strategy interface {
	// Method returns the strategy name
	Method() Method

	// Attempt performs the request once. It never retries.
	Attempt(ctx context.Context, req Request) Result
}

// browserHeaders mimic a regular browser so naive bot filters let the request pass
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
}

// httpStrategy is the shared request path of every built-in strategy
type httpStrategy struct {
	method   Method
	client   *http.Client
	decorate func(ctx context.Context, req *http.Request) *Error
}

func (s *httpStrategy) Method() Method {
	return s.method
}

func (s *httpStrategy) Attempt(ctx context.Context, r Request) Result {
	start := time.Now()
	fail := func(err *Error) Result {
		return Result{Method: s.method, Status: err.Status, Err: err, Latency: time.Since(start), CheckedAt: start}
	}

	verb := r.Method
	if verb == "" {
		verb = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, verb, r.URL, body)
	if err != nil {
		return fail(&Error{Kind: KindNetwork, Method: s.method, Msg: "failed to create request", Err: err})
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if s.decorate != nil {
		if derr := s.decorate(ctx, req); derr != nil {
			return fail(derr)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(classifyTransport(ctx, s.method, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fail(classifyTransport(ctx, s.method, err))
	}

	if rerr := classifyResponse(s.method, resp, data, r.ExpectJSON); rerr != nil {
		return fail(rerr)
	}

	return Result{
		Success:   true,
		Method:    s.method,
		Status:    resp.StatusCode,
		Body:      data,
		Latency:   time.Since(start),
		CheckedAt: start,
	}
}

// NewStandard creates the plain browser-like strategy
func NewStandard() Strategy {
	return &httpStrategy{
		method: MethodStandard,
		client: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
	}
}

// NewDirectIP creates a strategy that connects to ip instead of resolving
// the panel host. Host header and SNI still carry the original host name.
func NewDirectIP(ip string, port int) (Strategy, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("direct-ip: invalid address %q", ip)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, originalPort, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		target := originalPort
		if port > 0 {
			target = fmt.Sprint(port)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ip, target))
	}
	// The certificate is issued for the host name, not the origin IP
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

	return &httpStrategy{method: MethodDirectIP, client: &http.Client{Transport: transport}}, nil
}

// NewProxy creates a strategy that relays through an http, https or socks5 proxy
func NewProxy(rawURL string) (Strategy, error) {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid url: %w", err)
	}
	switch proxyURL.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("proxy: unsupported scheme %q", proxyURL.Scheme)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)

	return &httpStrategy{method: MethodProxy, client: &http.Client{Transport: transport}}, nil
}
