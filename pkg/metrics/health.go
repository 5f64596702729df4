package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthState summarizes component health
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// criticalComponents turn the report unhealthy when they fail. The panel is
// not one of them: an unreachable panel leaves the mirror serving its
// last-known-good state, which is degraded, not down.
var criticalComponents = map[string]bool{
	"store": true,
	"api":   true,
}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Name     string    `json:"name"`
	Healthy  bool      `json:"healthy"`
	Critical bool      `json:"critical"`
	Message  string    `json:"message,omitempty"`
	Updated  time.Time `json:"updated"`
}

// HealthReport is served on /health/components
type HealthReport struct {
	Status     HealthState       `json:"status"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

type healthRegistry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	started    time.Time
	version    string
	now        func() time.Time
}

func newHealthRegistry(now func() time.Time) *healthRegistry {
	return &healthRegistry{
		components: make(map[string]ComponentHealth),
		started:    now(),
		now:        now,
	}
}

var registry = newHealthRegistry(time.Now)

// SetVersion sets the version reported by /health/components
func SetVersion(version string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.version = version
}

// RegisterComponent records the state of a component, replacing any
// earlier report
func RegisterComponent(name string, healthy bool, message string) {
	registry.set(name, healthy, message)
}

// UpdateComponent is RegisterComponent for components already known
func UpdateComponent(name string, healthy bool, message string) {
	registry.set(name, healthy, message)
}

// Health returns the current report
func Health() HealthReport {
	return registry.report()
}

func (r *healthRegistry) set(name string, healthy bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.components[name] = ComponentHealth{
		Name:     name,
		Healthy:  healthy,
		Critical: criticalComponents[name],
		Message:  message,
		Updated:  r.now(),
	}
}

func (r *healthRegistry) component(name string) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

func (r *healthRegistry) report() HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	rep := HealthReport{
		Status:     Healthy,
		Version:    r.version,
		Uptime:     now.Sub(r.started).Round(time.Second).String(),
		Timestamp:  now,
		Components: make([]ComponentHealth, 0, len(r.components)),
	}

	for _, c := range r.components {
		rep.Components = append(rep.Components, c)
		switch {
		case c.Healthy:
		case c.Critical:
			rep.Status = Unhealthy
		case rep.Status == Healthy:
			rep.Status = Degraded
		}
	}
	sort.Slice(rep.Components, func(i, j int) bool { return rep.Components[i].Name < rep.Components[j].Name })
	return rep
}

// HealthHandler serves the component report; 503 when a critical
// component is failing
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := Health()

		status := http.StatusOK
		if rep.Status == Unhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	}
}
