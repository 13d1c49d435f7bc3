package weight

import (
	"sync"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Weight is a replica's relative preference as of Timestamp.
type Weight struct {
	Value     float64
	Timestamp time.Time
}

// Store holds the latest weight per replica. Weights older than ttl read as
// absent.
type Store struct {
	mutex   sync.RWMutex
	ttl     time.Duration
	weights map[replica.Replica]Weight
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		weights: make(map[replica.Replica]Weight),
	}
}

// Get returns the weight of r if it is no older than the ttl at now.
func (s *Store) Get(r replica.Replica, now time.Time) (Weight, bool) {
	s.mutex.RLock()
	w, ok := s.weights[r]
	s.mutex.RUnlock()

	if !ok || now.Sub(w.Timestamp) > s.ttl {
		return Weight{}, false
	}

	return w, true
}

// Update stores every weight in batch, last write wins.
func (s *Store) Update(batch map[replica.Replica]Weight) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for r, w := range batch {
		s.weights[r] = w
	}
}

// All returns the weights that are still fresh at now.
func (s *Store) All(now time.Time) map[replica.Replica]Weight {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	fresh := make(map[replica.Replica]Weight, len(s.weights))
	for r, w := range s.weights {
		if now.Sub(w.Timestamp) <= s.ttl {
			fresh[r] = w
		}
	}

	return fresh
}

// Normalize divides every value in batch by maxWeight so that the best
// replica of the batch ends at exactly 1.
func Normalize(batch map[replica.Replica]Weight, maxWeight float64) {
	if len(batch) == 0 || maxWeight <= 0 {
		return
	}

	for r, w := range batch {
		w.Value /= maxWeight
		batch[r] = w
	}
}
