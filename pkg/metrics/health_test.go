package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetHealth swaps in a fresh registry driven by a controllable clock
func resetHealth(t *testing.T) *time.Time {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prev := registry
	registry = newHealthRegistry(func() time.Time { return now })
	t.Cleanup(func() { registry = prev })
	return &now
}

func TestHealthStates(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       HealthState
	}{
		{"nothing registered", nil, Healthy},
		{"all healthy", map[string]bool{"api": true, "store": true, "panel": true}, Healthy},
		{"panel down", map[string]bool{"api": true, "store": true, "panel": false}, Degraded},
		{"store down", map[string]bool{"api": true, "store": false, "panel": true}, Unhealthy},
		{"store and panel down", map[string]bool{"store": false, "panel": false}, Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, ok := range tt.components {
				RegisterComponent(name, ok, "")
			}
			assert.Equal(t, tt.want, Health().Status)
		})
	}
}

func TestUpdateComponentReplaces(t *testing.T) {
	now := resetHealth(t)

	RegisterComponent("store", false, "database not open")
	*now = now.Add(time.Minute)
	UpdateComponent("store", true, "bolt")

	c, ok := registry.component("store")
	require.True(t, ok)
	assert.True(t, c.Healthy)
	assert.True(t, c.Critical)
	assert.Equal(t, "bolt", c.Message)
	assert.Equal(t, *now, c.Updated)
}

func TestHealthReport(t *testing.T) {
	now := resetHealth(t)
	SetVersion("1.2.0")

	RegisterComponent("store", true, "bolt")
	RegisterComponent("panel", false, "0 of 2 strategies reachable")
	*now = now.Add(90 * time.Second)

	rep := Health()
	assert.Equal(t, "1.2.0", rep.Version)
	assert.Equal(t, "1m30s", rep.Uptime)
	require.Len(t, rep.Components, 2)
	assert.Equal(t, "panel", rep.Components[0].Name, "components are sorted")
	assert.False(t, rep.Components[0].Critical)
	assert.Equal(t, "store", rep.Components[1].Name)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		store      bool
		wantCode   int
		wantStatus HealthState
	}{
		{"healthy", true, http.StatusOK, Healthy},
		{"critical failure", false, http.StatusServiceUnavailable, Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			RegisterComponent("store", tt.store, "")

			w := httptest.NewRecorder()
			HealthHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/components", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var rep HealthReport
			require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
			assert.Equal(t, tt.wantStatus, rep.Status)
		})
	}
}
