package strategy

import (
	"iter"
	"slices"
	"sync/atomic"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// RoundRobin ignores weights and starts each request one replica further
// along the list, wrapping around.
type RoundRobin struct {
	current atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (rb *RoundRobin) Order(replicas []replica.Replica, _ WeightFunc) iter.Seq[replica.Replica] {
	if len(replicas) < 2 {
		return slices.Values(replicas)
	}

	n := rb.current.Add(1)
	start := int((n - 1) % uint64(len(replicas)))

	return func(yield func(replica.Replica) bool) {
		for i := range replicas {
			if !yield(replicas[(start+i)%len(replicas)]) {
				return
			}
		}
	}
}
