package circuitbreaker

import (
	"sync"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Key scopes a breaker to one replica within one cluster.
type Key struct {
	Cluster replica.Cluster
	Replica replica.Replica
}

// ChangeFunc observes every state transition of every breaker.
type ChangeFunc func(key Key, from, to State)

type Option func(*Registry)

// WithClock replaces time.Now for every breaker of the registry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithOnChange(fn ChangeFunc) Option {
	return func(r *Registry) { r.onChange = fn }
}

// Registry lazily creates one breaker per key.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[Key]*CircuitBreaker
	settings Settings
	now      func() time.Time
	onChange ChangeFunc
}

func NewRegistry(settings Settings, opts ...Option) *Registry {
	r := &Registry{
		breakers: make(map[Key]*CircuitBreaker),
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the breaker of key without creating one.
func (r *Registry) Lookup(key Key) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cb, exists := r.breakers[key]
	return cb, exists
}

func (r *Registry) Get(key Key) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[key]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Another goroutine may have created it in between.
	if cb, exists = r.breakers[key]; exists {
		return cb
	}

	var onChange func(from, to State)
	if r.onChange != nil {
		onChange = func(from, to State) { r.onChange(key, from, to) }
	}

	cb = New(r.settings, r.now, onChange)
	r.breakers[key] = cb
	return cb
}

// States reports the state of every breaker of cluster.
func (r *Registry) States(cluster replica.Cluster) map[replica.Replica]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	states := make(map[replica.Replica]State)
	for key, cb := range r.breakers {
		if key.Cluster == cluster {
			states[key.Replica] = cb.State()
		}
	}
	return states
}

// Evict drops every breaker of cluster and reports how many were dropped.
func (r *Registry) Evict(cluster replica.Cluster) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	evicted := 0
	for key := range r.breakers {
		if key.Cluster == cluster {
			delete(r.breakers, key)
			evicted++
		}
	}
	return evicted
}
