package clusterstate

import (
	"log/slog"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

const shardCount = 16

type shard struct {
	mutex  sync.RWMutex
	states map[replica.Cluster]*State
}

// Registry hands out exactly one State per cluster key and keeps it until it
// is evicted. Keys are spread over shards by hash.
type Registry struct {
	shards [shardCount]*shard
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger}
	for i := range r.shards {
		r.shards[i] = &shard{states: make(map[replica.Cluster]*State)}
	}
	return r
}

func (r *Registry) shardFor(key replica.Cluster) *shard {
	h := xxh3.HashString(key.Service + "\x00" + key.Environment)
	return r.shards[h%shardCount]
}

// GetOrCreate returns the state for key, calling create at most once per key.
func (r *Registry) GetOrCreate(key replica.Cluster, create func() *State) *State {
	s := r.shardFor(key)

	s.mutex.RLock()
	state, exists := s.states[key]
	s.mutex.RUnlock()

	if exists {
		return state
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if state, exists = s.states[key]; exists {
		return state
	}

	state = create()
	s.states[key] = state
	r.logger.Info("Cluster state created", slog.String("cluster", key.String()))

	return state
}

// Get returns the state for key if one was created.
func (r *Registry) Get(key replica.Cluster) (*State, bool) {
	s := r.shardFor(key)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state, ok := s.states[key]
	return state, ok
}

// Evict forgets the state for key. The next GetOrCreate starts from scratch.
func (r *Registry) Evict(key replica.Cluster) bool {
	s := r.shardFor(key)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.states[key]; !ok {
		return false
	}

	delete(s.states, key)
	r.logger.Info("Cluster state evicted", slog.String("cluster", key.String()))

	return true
}

// Keys lists every cluster with a live state.
func (r *Registry) Keys() []replica.Cluster {
	var keys []replica.Cluster
	for _, s := range r.shards {
		s.mutex.RLock()
		for key := range s.states {
			keys = append(keys, key)
		}
		s.mutex.RUnlock()
	}
	return keys
}
