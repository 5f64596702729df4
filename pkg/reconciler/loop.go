package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Loop syncs one target on a fixed interval
type Loop struct {
	engine   *Engine
	target   Target
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewLoop creates a periodic sync loop
func NewLoop(engine *Engine, target Target, interval time.Duration) *Loop {
	return &Loop{
		engine:   engine,
		target:   target,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sync loop. The first sync runs immediately.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop stops the loop and waits for an in-flight sync to return
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.stopCh
		cancel()
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.syncOnce(ctx)
	for {
		select {
		case <-ticker.C:
			l.syncOnce(ctx)
		case <-l.stopCh:
			return
		}
	}
}

// syncOnce runs one sync. Failures are logged by the engine and retried on
// the next tick.
func (l *Loop) syncOnce(ctx context.Context) {
	if _, err := l.engine.Sync(ctx, l.target); errors.Is(err, ErrSyncInProgress) {
		l.engine.logger.Debug().Str("panel_url", l.target.PanelURL).Msg("Periodic sync skipped, another sync is running")
	}
}
