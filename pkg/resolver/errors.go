package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies why a single attempt failed
type Kind string

const (
	KindNetwork   Kind = "network"
	KindTimeout   Kind = "timeout"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindPerimeter Kind = "perimeter"
	KindAuth      Kind = "auth"
)

const perimeterGuidance = "the request was answered by an edge security layer, not the panel; " +
	"allow-list this host at the edge network or enable the edge-bypass, direct-ip or proxy strategy"

// Error is the classified failure of one strategy attempt
type Error struct {
	Kind   Kind
	Method Method
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Method, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Guidance returns operator advice for the failure, if any
func (e *Error) Guidance() string {
	switch e.Kind {
	case KindPerimeter:
		return perimeterGuidance
	case KindAuth:
		return "the panel rejected the API key; check that it is valid and has application access"
	}
	return ""
}

// ExhaustedError is returned when every strategy failed in every round
type ExhaustedError struct {
	Attempts int
	Last     *Error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all connection strategies failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("all connection strategies failed after %d attempts, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// KindOf returns the Kind carried by err, or "" when err is unclassified
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

// IsAuth reports whether err is an upstream credential rejection
func IsAuth(err error) bool {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	return KindOf(err) == KindAuth
}

var challengeMarkers = []string{
	"cf-chl",
	"challenge-platform",
	"just a moment...",
	"attention required!",
	"error code: 1020",
	"access denied | ",
}

// classifyTransport turns a transport level failure into an Error
func classifyTransport(ctx context.Context, method Method, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Method: method, Err: err}
	}
	return &Error{Kind: KindNetwork, Method: method, Err: err}
}

// classifyResponse inspects a completed response. It returns nil when the
// response counts as a success.
func classifyResponse(method Method, resp *http.Response, body []byte, expectJSON bool) *Error {
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	validJSON := !expectJSON || gjson.ValidBytes(body)
	if ok && validJSON {
		return nil
	}

	if looksLikePerimeter(resp, body) {
		return &Error{Kind: KindPerimeter, Method: method, Status: resp.StatusCode, Msg: perimeterGuidance}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Method: method, Status: resp.StatusCode, Msg: upstreamMessage(body)}
	case resp.StatusCode == http.StatusForbidden:
		if panelError(body) {
			return &Error{Kind: KindAuth, Method: method, Status: resp.StatusCode, Msg: upstreamMessage(body)}
		}
		// Anything but the panel's own error document came from something
		// in front of it, so the other strategies still get their turn
		return &Error{Kind: KindPerimeter, Method: method, Status: resp.StatusCode, Msg: perimeterGuidance}
	case !ok:
		return &Error{Kind: KindStatus, Method: method, Status: resp.StatusCode, Msg: upstreamMessage(body)}
	default:
		return &Error{Kind: KindDecode, Method: method, Status: resp.StatusCode, Msg: "response is not valid JSON"}
	}
}

// looksLikePerimeter detects responses produced by an edge proxy or WAF in
// front of the panel. A 401 is always the panel's own answer.
func looksLikePerimeter(resp *http.Response, body []byte) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return false
	}
	if resp.StatusCode >= 520 && resp.StatusCode <= 530 {
		return true
	}
	if resp.Header.Get("Cf-Mitigated") != "" {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	edge := resp.Header.Get("Cf-Ray") != "" ||
		strings.Contains(strings.ToLower(resp.Header.Get("Server")), "cloudflare")
	htmlBody := strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
	return edge && htmlBody && resp.StatusCode >= 400
}

// panelError reports whether body is the panel's JSON error document
func panelError(body []byte) bool {
	return gjson.ValidBytes(body) && gjson.GetBytes(body, "errors").IsArray()
}

// upstreamMessage extracts the panel's error detail from a JSON error body
func upstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	if detail := gjson.GetBytes(body, "errors.0.detail"); detail.Exists() {
		return detail.String()
	}
	return gjson.GetBytes(body, "message").String()
}
