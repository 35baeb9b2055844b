package upstream

import (
	"sort"
	"sync"
	"time"
)

// Health represents the last observed status of an upstream service
type Health struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
	Failures    int       `json:"failures"`
}

// Tracker records call outcomes for one upstream. Safe for concurrent use.
type Tracker struct {
	name string

	mu     sync.RWMutex
	health Health
}

func NewTracker(name string) *Tracker {
	return &Tracker{
		name: name,
		health: Health{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

// Name returns the upstream identifier
func (t *Tracker) Name() string {
	return t.name
}

// Health returns current upstream health status
func (t *Tracker) Health() Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.health
}

// Record updates health from the outcome of one call. A nil err marks the
// upstream healthy again.
func (t *Tracker) Record(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.health.Healthy = true
		t.health.LastSuccess = time.Now()
		t.health.LastError = ""
		return
	}
	t.health.Healthy = false
	t.health.LastError = err.Error()
	t.health.Failures++
}

// Registry groups the trackers reported by the readiness probe
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Register adds t, replacing any tracker with the same name
func (r *Registry) Register(t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[t.Name()] = t
}

// Snapshot returns the health of every registered upstream keyed by name
func (r *Registry) Snapshot() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Health, len(r.trackers))
	for name, t := range r.trackers {
		out[name] = t.Health()
	}
	return out
}

// Unhealthy returns the sorted names of upstreams whose last call failed
func (r *Registry) Unhealthy() []string {
	var names []string
	for name, h := range r.Snapshot() {
		if !h.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
