package statistic

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// atomicFloat64 is a float64 updated through compare-and-swap on its bits.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Bucket accumulates call outcomes into running sums. Every field is updated
// with an atomic add, so Report never takes a lock.
type Bucket struct {
	totalCount        atomic.Int64
	rejectCount       atomic.Int64
	successSum        atomicFloat64
	successSquaredSum atomicFloat64
	rejectSum         atomicFloat64
	rejectSquaredSum  atomicFloat64
}

// NewBucket returns an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{}
}

// Report adds one outcome. Only accepted outcomes land on the success side.
func (b *Bucket) Report(outcome replica.Outcome) {
	latency := milliseconds(outcome.Elapsed)

	b.totalCount.Add(1)

	if outcome.Accepted() {
		b.successSum.Add(latency)
		b.successSquaredSum.Add(latency * latency)
		return
	}

	b.rejectCount.Add(1)
	b.rejectSum.Add(latency)
	b.rejectSquaredSum.Add(latency * latency)
}

// Totals returns an immutable copy of the current sums.
func (b *Bucket) Totals() Totals {
	return Totals{
		TotalCount:        b.totalCount.Load(),
		RejectCount:       b.rejectCount.Load(),
		SuccessSum:        b.successSum.Load(),
		SuccessSquaredSum: b.successSquaredSum.Load(),
		RejectSum:         b.rejectSum.Load(),
		RejectSquaredSum:  b.rejectSquaredSum.Load(),
	}
}

// Penalize returns a copy of the sums with every rejected latency inflated by
// penalty. The bucket itself is left untouched.
func (b *Bucket) Penalize(penalty float64) Totals {
	return b.Totals().Penalize(penalty)
}

// Totals is a point-in-time copy of a Bucket. Latencies are in milliseconds.
type Totals struct {
	TotalCount        int64
	RejectCount       int64
	SuccessSum        float64
	SuccessSquaredSum float64
	RejectSum         float64
	RejectSquaredSum  float64
}

// Penalize behaves as if penalty had been added to every rejected latency
// before it was summed and squared.
func (t Totals) Penalize(penalty float64) Totals {
	rejects := float64(t.RejectCount)

	t.RejectSquaredSum = t.RejectSquaredSum + 2*penalty*t.RejectSum + penalty*penalty*rejects
	t.RejectSum = t.RejectSum + rejects*penalty

	return t
}

// ErrorFraction is the share of outcomes that were not accepted.
func (t Totals) ErrorFraction() float64 {
	if t.TotalCount <= 0 {
		return 0
	}
	return float64(t.RejectCount) / float64(t.TotalCount)
}

// Aggregate folds success and reject sums into a single mean and standard
// deviation.
func (t Totals) Aggregate(timestamp time.Time) AggregatedStatistic {
	count := float64(max(t.TotalCount, 1))

	mean := (t.SuccessSum + t.RejectSum) / count
	squares := (t.SuccessSquaredSum + t.RejectSquaredSum) / count
	variance := math.Max(0, squares-mean*mean)

	return AggregatedStatistic{
		TotalCount:    t.TotalCount,
		ErrorFraction: t.ErrorFraction(),
		Mean:          mean,
		StdDev:        math.Sqrt(variance),
		Timestamp:     timestamp,
	}
}

// Penalty is the synthetic latency given to rejected calls: multiplier
// standard deviations above the unpenalized mean.
func (t Totals) Penalty(multiplier float64) float64 {
	stat := t.Aggregate(time.Time{})
	return stat.Mean + multiplier*stat.StdDev
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
