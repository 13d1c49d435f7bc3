package strategy

import (
	"iter"
	"slices"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Random ignores weights and visits replicas in uniformly random order.
type Random struct{}

func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Order(replicas []replica.Replica, _ WeightFunc) iter.Seq[replica.Replica] {
	if len(replicas) < 2 {
		return slices.Values(replicas)
	}

	return func(yield func(replica.Replica) bool) {
		shuffled(slices.Clone(replicas), yield)
	}
}
