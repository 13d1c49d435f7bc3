package clusterstate

import (
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/history"
	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

// State is everything the adaptive weighing keeps for one cluster.
//
// The accumulator, the last update timestamp and the recomputation gate are
// all atomics so that reporting outcomes never waits on a recomputation.
type State struct {
	current    atomic.Pointer[statistic.Accumulator]
	lastUpdate atomic.Int64
	updating   atomic.Bool

	history *history.Store
	weights *weight.Store
}

// New creates a state whose first recomputation is due one period after now.
func New(now time.Time, statisticTTL, weightsTTL time.Duration) *State {
	s := &State{
		history: history.NewStore(statisticTTL),
		weights: weight.NewStore(weightsTTL),
	}
	s.current.Store(statistic.NewAccumulator())
	s.lastUpdate.Store(now.UnixNano())

	return s
}

// Statistic returns the accumulator currently receiving reports.
func (s *State) Statistic() *statistic.Accumulator {
	return s.current.Load()
}

// SwapStatistic installs a fresh accumulator and returns the previous one.
// Reports racing with the swap may land in either.
func (s *State) SwapStatistic() *statistic.Accumulator {
	return s.current.Swap(statistic.NewAccumulator())
}

func (s *State) LastUpdate() time.Time {
	return time.Unix(0, s.lastUpdate.Load())
}

func (s *State) SetLastUpdate(t time.Time) {
	s.lastUpdate.Store(t.UnixNano())
}

// TryAcquire closes the recomputation gate. Only the caller that gets true
// may recompute, and it must call Release afterwards.
func (s *State) TryAcquire() bool {
	return s.updating.CompareAndSwap(false, true)
}

func (s *State) Release() {
	s.updating.Store(false)
}

func (s *State) History() *history.Store {
	return s.history
}

func (s *State) Weights() *weight.Store {
	return s.weights
}
