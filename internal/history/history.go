// Package history keeps the latest smoothed statistic per replica between
// recomputation cycles so that replicas which go quiet for a while still have
// an anchor to smooth against.
package history

import (
	"maps"
	"sync"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
)

// Store retains the most recent ClusterSnapshot. Replicas missing from a new
// snapshot survive until their statistic is older than ttl.
type Store struct {
	mutex    sync.RWMutex
	ttl      time.Duration
	cluster  *statistic.AggregatedStatistic
	replicas map[replica.Replica]statistic.AggregatedStatistic
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		replicas: make(map[replica.Replica]statistic.AggregatedStatistic),
	}
}

// Get returns a copy of the stored snapshot.
func (s *Store) Get() statistic.ClusterSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot := statistic.ClusterSnapshot{
		Replicas: maps.Clone(s.replicas),
	}
	if s.cluster != nil {
		cluster := *s.cluster
		snapshot.Cluster = &cluster
	}

	return snapshot
}

// Update stores next. The cluster statistic is replaced unconditionally.
func (s *Store) Update(next statistic.ClusterSnapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	if next.Cluster != nil {
		cluster := *next.Cluster
		s.cluster = &cluster
		now = cluster.Timestamp
	}

	for r, stat := range s.replicas {
		if _, fresh := next.Replicas[r]; fresh {
			continue
		}
		if now.Sub(stat.Timestamp) > s.ttl {
			delete(s.replicas, r)
		}
	}

	for r, stat := range next.Replicas {
		s.replicas[r] = stat
	}
}
