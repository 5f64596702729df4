package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/panelsync/pkg/events"
	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultInterval is the live poll cadence
	DefaultInterval = 5 * time.Second

	// DefaultConcurrency bounds simultaneous resource requests
	DefaultConcurrency = 16
)

// ResourceSource reads raw resource usage for one server
type ResourceSource interface {
	Resources(ctx context.Context, identifier string) (*types.ResourceUsage, error)
}

// ServerLister lists the mirrored servers to poll
type ServerLister interface {
	ListServers() ([]*types.MirroredServer, error)
}

// Poller feeds the Cache from the panel's resource endpoint. It only reads
// the mirror and never writes it.
type Poller struct {
	cache       *Cache
	lister      ServerLister
	source      ResourceSource
	broker      *events.Broker
	interval    time.Duration
	concurrency int
	stopCh      chan struct{}
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// NewPoller creates a poller. Zero interval or concurrency use the defaults.
func NewPoller(cache *Cache, lister ServerLister, source ResourceSource, broker *events.Broker, interval time.Duration, concurrency int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Poller{
		cache:       cache,
		lister:      lister,
		source:      source,
		broker:      broker,
		interval:    interval,
		concurrency: concurrency,
		stopCh:      make(chan struct{}),
		logger:      log.WithComponent("live"),
	}
}

// Start begins polling
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop stops polling and waits for the current round
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopCh
		cancel()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("Live poll failed")
			}
		case <-p.stopCh:
			return
		}
	}
}

// PollOnce polls every mirrored server once. A failed poll for one server
// leaves its cache entry as it was.
func (p *Poller) PollOnce(ctx context.Context) error {
	servers, err := p.lister.ListServers()
	if err != nil {
		return fmt.Errorf("list mirrored servers: %w", err)
	}

	keep := make(map[string]struct{}, len(servers))
	for _, srv := range servers {
		keep[srv.Identifier] = struct{}{}
	}
	if dropped := p.cache.Retain(keep); dropped > 0 {
		p.logger.Debug().Int("dropped", dropped).Msg("Forgot servers no longer mirrored")
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, srv := range servers {
		g.Go(func() error {
			usage, err := p.source.Resources(ctx, srv.Identifier)
			if err != nil {
				metrics.LivePollErrorsTotal.Inc()
				p.logger.Debug().Err(err).Str("server_id", srv.Identifier).Msg("Resource poll failed")
				return nil
			}

			snap, transition := p.cache.Observe(srv.Identifier, Observation{
				State:  usage.State,
				Usage:  *usage,
				Limits: srv.Limits,
			})
			p.publish(srv.Identifier, snap, transition)
			return nil
		})
	}
	_ = g.Wait()

	metrics.LiveRunningServers.Set(float64(p.cache.Len()))
	return nil
}

func (p *Poller) publish(id string, snap Snapshot, transition Transition) {
	switch transition {
	case Started, Continued:
		p.broker.Publish(&events.Event{
			Type:     events.EventLiveUpdated,
			Metadata: map[string]string{"server_id": id},
			Data:     snap,
		})
	case Stopped:
		p.broker.Publish(&events.Event{
			Type:     events.EventLiveStopped,
			Message:  "server is no longer running",
			Metadata: map[string]string{"server_id": id, "state": snap.State},
		})
	}
}
