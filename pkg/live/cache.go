package live

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/panelsync/pkg/types"
)

const stateRunning = "running"

// Observation is one poll result for a server
type Observation struct {
	State  string
	Usage  types.ResourceUsage
	Limits types.Limits
}

// Snapshot is the presented live state of a running server
type Snapshot struct {
	Identifier       string    `json:"identifier"`
	State            string    `json:"state"`
	Uptime           string    `json:"uptime"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryBytes      int64     `json:"memory_bytes"`
	MemoryLimitBytes int64     `json:"memory_limit_bytes"`
	MemoryPercent    float64   `json:"memory_percent"`
	DiskBytes        int64     `json:"disk_bytes"`
	DiskLimitBytes   int64     `json:"disk_limit_bytes"`
	DiskPercent      float64   `json:"disk_percent"`
	NetworkRxBytes   int64     `json:"network_rx_bytes"`
	NetworkTxBytes   int64     `json:"network_tx_bytes"`
	RunningSince     time.Time `json:"running_since"`
	ObservedAt       time.Time `json:"observed_at"`
}

// Transition describes what an observation did to a cache entry
type Transition int

const (
	// Idle means the server is neither running nor tracked
	Idle Transition = iota
	// Started means the first running observation created an entry
	Started
	// Continued means a tracked server is still running
	Continued
	// Stopped means a tracked server stopped and its entry was removed
	Stopped
)

type entry struct {
	baseTime time.Time
	seed     time.Duration
	last     Snapshot
}

// Cache tracks uptime and the latest resource snapshot of running servers.
// Uptime is seed + (now - baseTime), so a missed poll never resets it. Any
// non-running observation drops the entry; a restart starts from the seed.
// Entries live in memory only and are lost on process restart.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	seeds   map[string]time.Duration
	now     func() time.Time
}

// NewCache creates a cache. seeds give servers a starting uptime.
func NewCache(seeds map[string]time.Duration) *Cache {
	// Seed keys pass through viper, which lowercases map keys
	normalized := make(map[string]time.Duration, len(seeds))
	for id, d := range seeds {
		normalized[strings.ToLower(id)] = d
	}
	return &Cache{
		entries: make(map[string]*entry),
		seeds:   normalized,
		now:     time.Now,
	}
}

// Observe applies one poll result for id
func (c *Cache) Observe(id string, obs Observation) (Snapshot, Transition) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, tracked := c.entries[id]
	if obs.State != stateRunning {
		if tracked {
			delete(c.entries, id)
			return Snapshot{Identifier: id, State: obs.State, Uptime: FormatUptime(0), ObservedAt: now}, Stopped
		}
		return Snapshot{}, Idle
	}

	transition := Continued
	if !tracked {
		e = &entry{baseTime: now, seed: c.seeds[strings.ToLower(id)]}
		c.entries[id] = e
		transition = Started
	}

	e.last = buildSnapshot(id, obs, now)
	e.last.RunningSince = e.baseTime
	e.withUptime(now)
	return e.last, transition
}

// Get returns the current snapshot of a running server
func (c *Cache) Get(id string) (Snapshot, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	e.withUptime(now)
	return e.last, true
}

// All returns the snapshots of every running server, sorted by identifier
func (c *Cache) All() []Snapshot {
	now := c.now()

	c.mu.Lock()
	out := make([]Snapshot, 0, len(c.entries))
	for _, e := range c.entries {
		e.withUptime(now)
		out = append(out, e.last)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Retain drops entries whose identifier is not in keep and returns how many
// were dropped
func (c *Cache) Retain(keep map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for id := range c.entries {
		if _, ok := keep[id]; !ok {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of running servers tracked
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (e *entry) withUptime(now time.Time) {
	elapsed := now.Sub(e.baseTime)
	if elapsed < 0 {
		elapsed = 0
	}
	uptime := e.seed + elapsed
	e.last.Uptime = FormatUptime(uptime)
	e.last.UptimeSeconds = int64(uptime / time.Second)
}

const mb = 1024 * 1024

func buildSnapshot(id string, obs Observation, now time.Time) Snapshot {
	u := obs.Usage
	s := Snapshot{
		Identifier:       id,
		State:            obs.State,
		MemoryBytes:      u.MemoryBytes,
		MemoryLimitBytes: int64(obs.Limits.Memory) * mb,
		DiskBytes:        u.DiskBytes,
		DiskLimitBytes:   int64(obs.Limits.Disk) * mb,
		NetworkRxBytes:   u.NetworkRxBytes,
		NetworkTxBytes:   u.NetworkTxBytes,
		ObservedAt:       now,
	}

	// CPU limit is a percentage where 100 is one core; 0 means unlimited
	if obs.Limits.CPU > 0 {
		s.CPUPercent = clampPercent(u.CPUAbsolute / float64(obs.Limits.CPU) * 100)
	} else {
		s.CPUPercent = clampPercent(u.CPUAbsolute)
	}
	s.MemoryPercent = ratioPercent(u.MemoryBytes, s.MemoryLimitBytes)
	s.DiskPercent = ratioPercent(u.DiskBytes, s.DiskLimitBytes)
	return s
}

func ratioPercent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return clampPercent(float64(used) / float64(limit) * 100)
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
