package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the number of strategy rounds
	DefaultMaxRetries = 3

	// DefaultTimeout bounds each individual attempt
	DefaultTimeout = 15 * time.Second
)

// Config selects and parameterizes the strategies of a Resolver
type Config struct {
	MaxRetries int
	Timeout    time.Duration

	Standard   bool
	EdgeBypass *EdgeBypassConfig
	DirectIP   *DirectIPConfig
	Proxy      *ProxyConfig
}

// DirectIPConfig configures the direct-ip strategy
type DirectIPConfig struct {
	IP   string
	Port int
}

// ProxyConfig configures the proxy strategy
type ProxyConfig struct {
	URL string
}

// Resolver reaches the panel through an ordered list of strategies
type Resolver struct {
	strategies []Strategy
	maxRetries int
	timeout    time.Duration
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// Option customizes a Resolver
type Option func(*Resolver)

// WithMaxRetries sets the number of rounds
func WithMaxRetries(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBackOff replaces the wait policy between rounds
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *Resolver) {
		r.newBackOff = fn
	}
}

// New creates a Resolver trying strategies in the given order
func New(strategies []Strategy, opts ...Option) (*Resolver, error) {
	if len(strategies) == 0 {
		return nil, errors.New("resolver: at least one strategy is required")
	}
	r := &Resolver{
		strategies: strategies,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		newBackOff: roundBackOff,
		logger:     log.WithComponent("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FromConfig builds the enabled strategies in their fixed priority order:
// standard, edge-bypass, direct-ip, proxy.
func FromConfig(cfg Config, opts ...Option) (*Resolver, error) {
	var strategies []Strategy

	if cfg.Standard {
		strategies = append(strategies, NewStandard())
	}
	if cfg.EdgeBypass != nil {
		s, err := NewEdgeBypass(*cfg.EdgeBypass)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if cfg.DirectIP != nil {
		s, err := NewDirectIP(cfg.DirectIP.IP, cfg.DirectIP.Port)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if cfg.Proxy != nil {
		s, err := NewProxy(cfg.Proxy.URL)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	opts = append([]Option{WithMaxRetries(cfg.MaxRetries), WithTimeout(cfg.Timeout)}, opts...)
	return New(strategies, opts...)
}

// roundBackOff waits 1s, 2s, 4s... between rounds
func roundBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Methods returns the strategy names in attempt order
func (r *Resolver) Methods() []Method {
	methods := make([]Method, 0, len(r.strategies))
	for _, s := range r.strategies {
		methods = append(methods, s.Method())
	}
	return methods
}

// Do performs req, trying every strategy in order within a round and
// backing off only between rounds. It returns the first successful result.
// An auth failure aborts immediately with its *Error; running out of
// rounds returns an *ExhaustedError.
func (r *Resolver) Do(ctx context.Context, req Request) (*Result, error) {
	var (
		winner   *Result
		last     *Error
		attempts int
	)

	round := func() error {
		for _, s := range r.strategies {
			attempts++
			res := r.attempt(ctx, s, req)
			if res.Success {
				winner = &res
				return nil
			}
			last = res.Err
			if res.Err.Kind == KindAuth {
				return backoff.Permanent(res.Err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
		}
		return last
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxRetries-1)), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.Debug().Err(err).Dur("wait", wait).Msg("All strategies failed, backing off before next round")
	}

	err := backoff.RetryNotify(round, b, notify)
	if err == nil {
		return winner, nil
	}

	var rerr *Error
	if errors.As(err, &rerr) && rerr.Kind == KindAuth {
		r.logger.Warn().Err(rerr).Msg("Panel rejected credentials")
		return nil, rerr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("resolve %s: %w", req.URL, ctxErr)
	}

	metrics.ResolverExhaustedTotal.Inc()
	exhausted := &ExhaustedError{Attempts: attempts, Last: last}
	r.logger.Warn().Err(exhausted).Str("url", req.URL).Msg("Connection strategies exhausted")
	return nil, exhausted
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, req Request) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	timer := metrics.NewTimer()
	res := s.Attempt(attemptCtx, req)
	timer.ObserveDurationVec(metrics.ResolverAttemptDuration, string(s.Method()))

	if res.Success {
		metrics.ResolverAttemptsTotal.WithLabelValues(string(s.Method()), "success").Inc()
		return res
	}

	if res.Err == nil {
		res.Err = &Error{Kind: KindNetwork, Method: s.Method(), Msg: "strategy reported failure without an error"}
	}
	metrics.ResolverAttemptsTotal.WithLabelValues(string(s.Method()), string(res.Err.Kind)).Inc()
	r.logger.Debug().
		Str("method", string(s.Method())).
		Str("kind", string(res.Err.Kind)).
		Err(res.Err).
		Msg("Connection attempt failed")
	return res
}

// Report is the diagnostic outcome of one strategy
type Report struct {
	Method    Method `json:"method"`
	Success   bool   `json:"success"`
	Status    int    `json:"status,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Guidance  string `json:"guidance,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Diagnose runs every strategy exactly once against req without
// short-circuiting. It never retries and never backs off.
func (r *Resolver) Diagnose(ctx context.Context, req Request) []Report {
	reports := make([]Report, 0, len(r.strategies))
	for _, s := range r.strategies {
		res := r.attempt(ctx, s, req)
		report := Report{
			Method:    s.Method(),
			Success:   res.Success,
			Status:    res.Status,
			LatencyMS: res.Latency.Milliseconds(),
		}
		if res.Err != nil {
			report.Kind = res.Err.Kind
			report.Error = res.Err.Error()
			report.Guidance = res.Err.Guidance()
		}
		reports = append(reports, report)
	}
	return reports
}
