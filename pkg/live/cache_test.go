package live

import (
	"testing"
	"time"

	"github.com/cuemby/panelsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(seeds map[string]time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(seeds)
	c.now = clock.Now
	return c, clock
}

func running() Observation {
	return Observation{State: "running"}
}

func TestCache_UptimeMonotonicWhileRunning(t *testing.T) {
	c, clock := newTestCache(nil)

	snap, tr := c.Observe("A", running())
	assert.Equal(t, Started, tr)
	assert.Equal(t, "0d 0h 0m", snap.Uptime)

	prev := snap.UptimeSeconds
	for i := 0; i < 10; i++ {
		clock.Advance(7 * time.Minute)
		snap, tr = c.Observe("A", running())
		assert.Equal(t, Continued, tr)
		assert.GreaterOrEqual(t, snap.UptimeSeconds, prev)
		prev = snap.UptimeSeconds
	}
	assert.Equal(t, "0d 1h 10m", snap.Uptime)
}

func TestCache_MissedPollsDoNotReset(t *testing.T) {
	c, clock := newTestCache(nil)
	c.Observe("A", running())

	// Several polls failed; nothing was observed for two hours
	clock.Advance(2 * time.Hour)
	snap, tr := c.Observe("A", running())
	assert.Equal(t, Continued, tr)
	assert.Equal(t, "0d 2h 0m", snap.Uptime)
}

func TestCache_NonRunningResets(t *testing.T) {
	c, clock := newTestCache(map[string]time.Duration{"A": 3 * time.Hour})

	c.Observe("A", running())
	clock.Advance(time.Hour)
	snap, _ := c.Observe("A", running())
	assert.Equal(t, "0d 4h 0m", snap.Uptime)

	snap, tr := c.Observe("A", Observation{State: "stopping"})
	assert.Equal(t, Stopped, tr)
	assert.Equal(t, "stopping", snap.State)
	_, ok := c.Get("A")
	assert.False(t, ok)

	_, tr = c.Observe("A", Observation{State: "offline"})
	assert.Equal(t, Idle, tr)

	clock.Advance(time.Hour)
	snap, tr = c.Observe("A", running())
	assert.Equal(t, Started, tr)
	assert.Equal(t, "0d 3h 0m", snap.Uptime, "restart begins at the seed")
}

func TestCache_SeedMatchesMixedCaseIdentifier(t *testing.T) {
	// Config map keys arrive lowercased
	c, _ := newTestCache(map[string]time.Duration{"ab12cd34": 2 * time.Hour})

	snap, tr := c.Observe("AB12cd34", running())
	assert.Equal(t, Started, tr)
	assert.Equal(t, "0d 2h 0m", snap.Uptime)
	assert.Equal(t, "AB12cd34", snap.Identifier)
}

func TestCache_GetRecomputesUptime(t *testing.T) {
	c, clock := newTestCache(nil)
	c.Observe("A", running())
	clock.Advance(25 * time.Hour)

	snap, ok := c.Get("A")
	require.True(t, ok)
	assert.Equal(t, "1d 1h 0m", snap.Uptime)
	assert.Equal(t, int64(25*3600), snap.UptimeSeconds)
}

func TestCache_Percentages(t *testing.T) {
	c, _ := newTestCache(nil)

	snap, _ := c.Observe("A", Observation{
		State: "running",
		Usage: types.ResourceUsage{
			CPUAbsolute: 150,
			MemoryBytes: 512 * mb,
			DiskBytes:   3000 * mb,
		},
		Limits: types.Limits{Memory: 1024, Disk: 2048, CPU: 200},
	})

	assert.InDelta(t, 75, snap.CPUPercent, 0.001)
	assert.Equal(t, int64(1024*mb), snap.MemoryLimitBytes)
	assert.InDelta(t, 50, snap.MemoryPercent, 0.001)
	assert.Equal(t, float64(100), snap.DiskPercent, "clamped to 100")
}

func TestCache_UnlimitedResources(t *testing.T) {
	c, _ := newTestCache(nil)

	snap, _ := c.Observe("A", Observation{
		State: "running",
		Usage: types.ResourceUsage{CPUAbsolute: 340, MemoryBytes: 512 * mb},
	})
	assert.Equal(t, float64(100), snap.CPUPercent)
	assert.Zero(t, snap.MemoryLimitBytes)
	assert.Zero(t, snap.MemoryPercent)
}

func TestCache_AllAndRetain(t *testing.T) {
	c, _ := newTestCache(nil)
	c.Observe("B", running())
	c.Observe("A", running())
	c.Observe("C", running())

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].Identifier)

	dropped := c.Retain(map[string]struct{}{"A": {}})
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, c.Len())
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, float64(0), clampPercent(-5))
	assert.Equal(t, float64(42), clampPercent(42))
	assert.Equal(t, float64(100), clampPercent(250))
}
