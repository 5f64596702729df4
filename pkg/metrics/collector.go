package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/panelsync/pkg/types"
)

// DefaultCollectInterval is how often the mirror gauges are refreshed
const DefaultCollectInterval = 15 * time.Second

// ServerLister is the read side of the mirror store the collector needs
type ServerLister interface {
	ListServers() ([]*types.MirroredServer, error)
}

// Collector refreshes the mirror size gauges and the store component
// health from periodic reads of the mirror
type Collector struct {
	store    ServerLister
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCollector(store ServerLister) *Collector {
	return &Collector{
		store:    store,
		interval: DefaultCollectInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start collects once immediately, then every interval until Stop
func (c *Collector) Start() {
	go func() {
		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	servers, err := c.store.ListServers()
	if err != nil {
		UpdateComponent("store", false, err.Error())
		return
	}
	UpdateComponent("store", true, "")

	byStatus := make(map[types.ServerStatus]int)
	for _, srv := range servers {
		byStatus[srv.Status]++
	}

	// Reset first so a status nobody has any more reads as absent, not stale
	MirroredServersTotal.Reset()
	for status, n := range byStatus {
		MirroredServersTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}
