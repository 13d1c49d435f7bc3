package strategy

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

var (
	ErrNegativeWeight    = errors.New("negative replica weight")
	ErrSamplingExhausted = errors.New("weighted sampling found no present replica")
)

const (
	maxPooledSamplerSize = 64

	// sumTolerance bounds the rounding drift of sampler.sum relative to the
	// total weight added.
	sumTolerance = 1e-9
)

var samplerPool = sync.Pool{New: func() any { return &sampler{} }}

// Weighted orders replicas by weighted sampling without replacement.
// Infinite weights come first and zero weights last, each group shuffled.
type Weighted struct{}

func NewWeighted() *Weighted {
	return &Weighted{}
}

// Order computes weights when iteration starts and draws one replica per
// step, so a caller that stops after the first replica pays for one draw.
func (w *Weighted) Order(replicas []replica.Replica, weigh WeightFunc) iter.Seq[replica.Replica] {
	if len(replicas) < 2 {
		return slices.Values(replicas)
	}

	return func(yield func(replica.Replica) bool) {
		var infinite, zero []replica.Replica

		s := acquireSampler(len(replicas))
		defer releaseSampler(s)

		for _, r := range replicas {
			weight := weigh(r)

			switch {
			case weight < 0:
				panic(fmt.Errorf("%w: %v for %s", ErrNegativeWeight, weight, r))
			case math.IsInf(weight, 1):
				infinite = append(infinite, r)
			case math.IsNaN(weight) || weight <= math.SmallestNonzeroFloat64:
				zero = append(zero, r)
			default:
				s.add(r, weight)
			}
		}

		if !shuffled(infinite, yield) {
			return
		}

		for s.remaining > 0 {
			if !yield(s.draw()) {
				return
			}
		}

		shuffled(zero, yield)
	}
}

type sampled struct {
	replica replica.Replica
	weight  float64
	present bool
}

// sampler is a flat array scanned linearly on every draw. Replica lists are
// short and callers rarely draw more than a few times.
type sampler struct {
	entries   []sampled
	sum       float64
	total     float64
	remaining int
}

func acquireSampler(size int) *sampler {
	s := samplerPool.Get().(*sampler)
	if cap(s.entries) < size {
		s.entries = make([]sampled, 0, size)
	}
	return s
}

func releaseSampler(s *sampler) {
	if cap(s.entries) > maxPooledSamplerSize {
		return
	}

	clear(s.entries)
	s.entries = s.entries[:0]
	s.sum = 0
	s.total = 0
	s.remaining = 0
	samplerPool.Put(s)
}

func (s *sampler) add(r replica.Replica, weight float64) {
	s.entries = append(s.entries, sampled{replica: r, weight: weight, present: true})
	s.sum += weight
	s.total += weight
	s.remaining++
}

// draw picks a present entry with probability proportional to its weight.
//
// Subtracting taken weights from sum accumulates rounding error, so the target
// may land just above the scanned total. A gap within sumTolerance of the
// added total goes to the last present entry and resyncs sum; a wider gap
// means sum no longer tracks the entries and panics.
func (s *sampler) draw() replica.Replica {
	return s.drawAt(s.sum * rand.Float64())
}

func (s *sampler) drawAt(target float64) replica.Replica {
	accumulated := 0.0
	last := -1

	for i := range s.entries {
		if !s.entries[i].present {
			continue
		}

		last = i
		accumulated += s.entries[i].weight
		if accumulated >= target {
			return s.take(i)
		}
	}

	if last < 0 || target-accumulated > sumTolerance*math.Max(1, s.total) {
		panic(fmt.Errorf("%w: target %v above total %v", ErrSamplingExhausted, target, accumulated))
	}

	s.sum = accumulated
	return s.take(last)
}

func (s *sampler) take(i int) replica.Replica {
	e := &s.entries[i]
	e.present = false
	s.sum -= e.weight
	s.remaining--
	return e.replica
}

// shuffled yields group in uniformly random order, swapping lazily.
func shuffled(group []replica.Replica, yield func(replica.Replica) bool) bool {
	for i := range group {
		j := i + rand.IntN(len(group)-i)
		group[i], group[j] = group[j], group[i]
		if !yield(group[i]) {
			return false
		}
	}
	return true
}
