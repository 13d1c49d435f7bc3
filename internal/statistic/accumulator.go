package statistic

import (
	"sync"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// ClusterSnapshot is the outcome of one recomputation cycle: a cluster-wide
// statistic plus one statistic per replica that reported.
type ClusterSnapshot struct {
	Cluster  *AggregatedStatistic
	Replicas map[replica.Replica]AggregatedStatistic
}

// EmptySnapshot has no cluster statistic and no replicas.
func EmptySnapshot() ClusterSnapshot {
	return ClusterSnapshot{Replicas: make(map[replica.Replica]AggregatedStatistic)}
}

// Replica returns the statistic for r, or nil when r is unknown.
func (s ClusterSnapshot) Replica(r replica.Replica) *AggregatedStatistic {
	stat, ok := s.Replicas[r]
	if !ok {
		return nil
	}
	return &stat
}

// SnapshotSettings tunes how raw sums turn into a snapshot.
type SnapshotSettings struct {
	PenaltyMultiplier float64
	SmoothingConstant time.Duration
}

// Accumulator keeps one bucket for the whole cluster and one per replica.
type Accumulator struct {
	cluster  *Bucket
	replicas sync.Map // replica.Replica -> *Bucket
}

func NewAccumulator() *Accumulator {
	return &Accumulator{cluster: NewBucket()}
}

// Report records the outcome for the cluster and for its replica.
func (a *Accumulator) Report(outcome replica.Outcome) {
	a.cluster.Report(outcome)
	a.bucket(outcome.Replica).Report(outcome)
}

func (a *Accumulator) bucket(r replica.Replica) *Bucket {
	if b, ok := a.replicas.Load(r); ok {
		return b.(*Bucket)
	}

	b, _ := a.replicas.LoadOrStore(r, NewBucket())
	return b.(*Bucket)
}

// ClusterTotals exposes the cluster bucket sums.
func (a *Accumulator) ClusterTotals() Totals {
	return a.cluster.Totals()
}

// Snapshot penalizes, aggregates and smooths every bucket against previous.
// The penalty is computed once from the unpenalized cluster bucket and shared
// by all replicas.
func (a *Accumulator) Snapshot(now time.Time, previous ClusterSnapshot, settings SnapshotSettings) ClusterSnapshot {
	clusterTotals := a.cluster.Totals()
	penalty := clusterTotals.Penalty(settings.PenaltyMultiplier)

	cluster := clusterTotals.
		Penalize(penalty).
		Aggregate(now).
		Smooth(previous.Cluster, settings.SmoothingConstant)

	snapshot := ClusterSnapshot{
		Cluster:  &cluster,
		Replicas: make(map[replica.Replica]AggregatedStatistic),
	}

	a.replicas.Range(func(key, value any) bool {
		r := key.(replica.Replica)
		stat := value.(*Bucket).
			Penalize(penalty).
			Aggregate(now).
			Smooth(previous.Replica(r), settings.SmoothingConstant)

		snapshot.Replicas[r] = stat
		return true
	})

	return snapshot
}
