package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/panelsync/pkg/events"
	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/cuemby/panelsync/pkg/storage"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DemoPanelURL owns records created from the demo directory and is the demo lock key
const DemoPanelURL = "demo"

// Fetcher produces the authoritative server directory of one panel
type Fetcher interface {
	FetchServers(ctx context.Context) ([]types.RemoteServer, error)
}

// Target is one panel to reconcile against
type Target struct {
	PanelURL string
	Fetcher  Fetcher
}

// Engine converges the mirror store to a fetched directory
type Engine struct {
	store  storage.Store
	locker Locker
	broker *events.Broker
	demo   Fetcher
	now    func() time.Time
	logger zerolog.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithBroker publishes sync and server events to broker
func WithBroker(broker *events.Broker) Option {
	return func(e *Engine) { e.broker = broker }
}

// WithDemo sets the directory used by SyncDemo
func WithDemo(f Fetcher) Option {
	return func(e *Engine) { e.demo = f }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a reconciliation engine. A nil locker uses a LocalLocker.
func NewEngine(store storage.Store, locker Locker, opts ...Option) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	e := &Engine{
		store:  store,
		locker: locker,
		now:    time.Now,
		logger: log.WithComponent("reconciler"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync reconciles the mirror against target. Only one run per panel URL may
// be in flight; a concurrent call returns ErrSyncInProgress. If the fetch
// fails the store is not touched at all.
func (e *Engine) Sync(ctx context.Context, target Target) (*types.SyncResult, error) {
	if target.Fetcher == nil {
		return nil, errors.New("sync target has no fetcher")
	}

	unlock, err := e.locker.TryLock(ctx, target.PanelURL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return e.run(ctx, target.PanelURL, target.Fetcher, false)
}

// SyncDemo applies the demo directory. It creates and updates like Sync but
// never deletes: demo data is not authoritative.
func (e *Engine) SyncDemo(ctx context.Context) (*types.SyncResult, error) {
	if e.demo == nil {
		return nil, errors.New("demo directory not configured")
	}

	unlock, err := e.locker.TryLock(ctx, DemoPanelURL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return e.run(ctx, DemoPanelURL, e.demo, true)
}

func (e *Engine) run(ctx context.Context, panelURL string, fetcher Fetcher, demo bool) (*types.SyncResult, error) {
	mode := "panel"
	if demo {
		mode = "demo"
	}
	logger := e.logger.With().Str("panel_url", panelURL).Str("mode", mode).Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	result := &types.SyncResult{
		PanelURL:   panelURL,
		Demo:       demo,
		CreatedIDs: []string{},
		UpdatedIDs: []string{},
		DeletedIDs: []string{},
		StartedAt:  e.now(),
	}
	e.publish(events.EventSyncStarted, panelURL, "sync started", nil)

	remote, err := fetcher.FetchServers(ctx)
	if err != nil {
		if !demo {
			metrics.UpdateComponent("panel", false, err.Error())
		}
		return nil, e.fail(logger, mode, panelURL, fmt.Errorf("fetch directory: %w", err))
	}
	if !demo {
		metrics.UpdateComponent("panel", true, "directory fetched from "+panelURL)
	}
	remote = dedupe(remote)

	// Every create and update completes before the delete sweep
	seen := make([]string, 0, len(remote))
	for _, r := range remote {
		created, err := e.apply(panelURL, r)
		if err != nil {
			return nil, e.fail(logger, mode, panelURL, err)
		}
		seen = append(seen, r.Identifier)
		if created {
			result.CreatedIDs = append(result.CreatedIDs, r.Identifier)
		} else {
			result.UpdatedIDs = append(result.UpdatedIDs, r.Identifier)
		}
	}

	if !demo {
		deleted, err := e.store.DeleteServersNotIn(panelURL, seen)
		if err != nil {
			return nil, e.fail(logger, mode, panelURL, fmt.Errorf("delete stale servers: %w", err))
		}
		result.DeletedIDs = append(result.DeletedIDs, deleted...)
	}

	result.TotalSynced = len(seen)
	result.Created = len(result.CreatedIDs)
	result.Updated = len(result.UpdatedIDs)
	result.Deleted = len(result.DeletedIDs)
	result.FinishedAt = e.now()

	if err := e.store.RecordSync(result); err != nil {
		logger.Warn().Err(err).Msg("Failed to record sync result")
	}

	metrics.SyncRunsTotal.WithLabelValues(mode, "success").Inc()
	metrics.SyncChangesTotal.WithLabelValues("created").Add(float64(result.Created))
	metrics.SyncChangesTotal.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.SyncChangesTotal.WithLabelValues("deleted").Add(float64(result.Deleted))
	metrics.LastSuccessfulSync.WithLabelValues(panelURL).Set(float64(result.FinishedAt.Unix()))

	for _, id := range result.CreatedIDs {
		e.publish(events.EventServerCreated, panelURL, "server created", map[string]string{"server_id": id})
	}
	for _, id := range result.UpdatedIDs {
		e.publish(events.EventServerUpdated, panelURL, "server updated", map[string]string{"server_id": id})
	}
	for _, id := range result.DeletedIDs {
		e.publish(events.EventServerDeleted, panelURL, "server deleted", map[string]string{"server_id": id})
	}
	e.broker.Publish(&events.Event{
		Type:     events.EventSyncCompleted,
		Message:  "sync completed",
		Metadata: map[string]string{"panel_url": panelURL},
		Data:     result,
	})

	logger.Info().
		Int("total", result.TotalSynced).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Dur("duration", timer.Duration()).
		Msg("Sync completed")

	return result, nil
}

// apply writes one remote server, reporting whether it was created
func (e *Engine) apply(panelURL string, r types.RemoteServer) (bool, error) {
	now := e.now()

	existing, err := e.store.FindByIdentifier(r.Identifier)
	switch {
	case err == nil:
		existing.Apply(panelURL, r, now)
		if err := e.store.UpdateServer(existing); err != nil {
			return false, fmt.Errorf("update server %s: %w", r.Identifier, err)
		}
		return false, nil

	case errors.Is(err, storage.ErrNotFound):
		srv := &types.MirroredServer{
			ID:        uuid.New().String(),
			CreatedAt: now,
		}
		srv.Apply(panelURL, r, now)
		if err := e.store.CreateServer(srv); err != nil {
			return false, fmt.Errorf("create server %s: %w", r.Identifier, err)
		}
		return true, nil

	default:
		return false, fmt.Errorf("find server %s: %w", r.Identifier, err)
	}
}

func (e *Engine) fail(logger zerolog.Logger, mode, panelURL string, err error) error {
	metrics.SyncRunsTotal.WithLabelValues(mode, "failure").Inc()
	e.publish(events.EventSyncFailed, panelURL, err.Error(), nil)
	logger.Error().Err(err).Msg("Sync failed")
	return err
}

func (e *Engine) publish(t events.EventType, panelURL, msg string, metadata map[string]string) {
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	metadata["panel_url"] = panelURL
	e.broker.Publish(&events.Event{Type: t, Message: msg, Metadata: metadata})
}

// dedupe keeps the last occurrence of each identifier, in first-seen order
func dedupe(remote []types.RemoteServer) []types.RemoteServer {
	index := make(map[string]int, len(remote))
	out := make([]types.RemoteServer, 0, len(remote))
	for _, r := range remote {
		if i, ok := index[r.Identifier]; ok {
			out[i] = r
			continue
		}
		index[r.Identifier] = len(out)
		out = append(out, r)
	}
	return out
}
