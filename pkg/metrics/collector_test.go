package metrics

import (
	"errors"
	"testing"

	"github.com/cuemby/panelsync/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeLister struct {
	servers []*types.MirroredServer
	err     error
}

func (f *fakeLister) ListServers() ([]*types.MirroredServer, error) {
	return f.servers, f.err
}

func TestCollectorCountsByStatus(t *testing.T) {
	resetHealth(t)

	lister := &fakeLister{servers: []*types.MirroredServer{
		{Identifier: "a", Status: types.StatusLive},
		{Identifier: "b", Status: types.StatusLive},
		{Identifier: "c", Status: types.StatusOffline},
	}}

	c := NewCollector(lister)
	c.collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(MirroredServersTotal.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(MirroredServersTotal.WithLabelValues("offline")))
	store, ok := registry.component("store")
	assert.True(t, ok)
	assert.True(t, store.Healthy)

	// A status that vanished is reset rather than left stale
	lister.servers = lister.servers[:2]
	c.collect()
	assert.Equal(t, 1, testutil.CollectAndCount(MirroredServersTotal))
}

func TestCollectorMarksStoreUnhealthy(t *testing.T) {
	resetHealth(t)

	c := NewCollector(&fakeLister{err: errors.New("database not open")})
	c.collect()

	comp, ok := registry.component("store")
	assert.True(t, ok)
	assert.False(t, comp.Healthy)
	assert.Equal(t, "database not open", comp.Message)
}
