package strategy

import (
	"errors"
	"fmt"
	"iter"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

const (
	TypeWeighted   = "weighted"
	TypeRandom     = "random"
	TypeRoundRobin = "round-robin"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// WeightFunc returns the final weight of a replica for one request.
type WeightFunc func(r replica.Replica) float64

// Orderer produces the visiting order of replicas for one request. Every
// input replica appears exactly once in the sequence, duplicates included.
type Orderer interface {
	Order(replicas []replica.Replica, weigh WeightFunc) iter.Seq[replica.Replica]
}

// New returns the orderer registered under name.
func New(name string) (Orderer, error) {
	switch name {
	case TypeWeighted:
		return NewWeighted(), nil
	case TypeRandom:
		return NewRandom(), nil
	case TypeRoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
