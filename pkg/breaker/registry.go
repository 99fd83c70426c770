package breaker

import (
	"sync"
)

// Registry provides exactly one circuit breaker per provider key.
// Breakers are created lazily with the registry defaults and live for
// the process lifetime; a breaker is never removed once created.
type Registry struct {
	mu       sync.RWMutex
	defaults Config
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry with the given breaker defaults.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for name, creating it on first use.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if cb, ok = r.breakers[name]; ok {
		return cb
	}

	cb = New(name, r.defaults)
	r.breakers[name] = cb

	return cb
}

// Get returns the breaker for name if one exists.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.breakers[name]

	return cb, ok
}

// State returns the state of the named breaker. Unknown keys report
// Closed, matching the behavior of a breaker that has never tripped.
func (r *Registry) State(name string) State {
	cb, ok := r.Get(name)
	if !ok {
		return StateClosed
	}

	return cb.State()
}

// Healthy reports whether the named breaker is Closed. Only Closed is
// healthy; Open and HalfOpen both need recovery intervention.
func (r *Registry) Healthy(name string) bool {
	return r.State(name) == StateClosed
}

// Reset forces the named breaker back to Closed. No-op for unknown keys.
func (r *Registry) Reset(name string) {
	if cb, ok := r.Get(name); ok {
		cb.Reset()
	}
}

// Snapshot returns a point-in-time view of every breaker's counters,
// keyed by provider name.
func (r *Registry) Snapshot() map[string]Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]Counts, len(r.breakers))
	for name, cb := range r.breakers {
		snap[name] = cb.Counts()
	}

	return snap
}

// Names returns the keys of all breakers created so far.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}

	return names
}
