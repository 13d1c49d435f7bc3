package statistic

import (
	"math"
	"time"
)

// AggregatedStatistic is the immutable summary exchanged between the stages
// of a recomputation cycle.
type AggregatedStatistic struct {
	TotalCount    int64
	ErrorFraction float64
	Mean          float64
	StdDev        float64
	Timestamp     time.Time
}

// Smooth blends s with previous using an exponential filter driven by the
// wall-clock time between the two timestamps. A nil previous returns s.
func (s AggregatedStatistic) Smooth(previous *AggregatedStatistic, timeConstant time.Duration) AggregatedStatistic {
	if previous == nil {
		return s
	}

	smooth := func(current, prev float64) float64 {
		return SmoothValue(current, prev, s.Timestamp, previous.Timestamp, timeConstant)
	}

	return AggregatedStatistic{
		TotalCount:    s.TotalCount,
		ErrorFraction: smooth(s.ErrorFraction, previous.ErrorFraction),
		Mean:          smooth(s.Mean, previous.Mean),
		StdDev:        smooth(s.StdDev, previous.StdDev),
		Timestamp:     s.Timestamp,
	}
}

// SmoothValue returns current when no time has passed since previousAt (or
// the clock went backwards). Otherwise the weight of previous decays as
// exp(-elapsed/timeConstant).
func SmoothValue(current, previous float64, currentAt, previousAt time.Time, timeConstant time.Duration) float64 {
	if !currentAt.After(previousAt) || timeConstant <= 0 {
		return current
	}

	elapsed := currentAt.Sub(previousAt)
	ratio := math.Exp(-float64(elapsed) / float64(timeConstant))

	return (1-ratio)*current + ratio*previous
}
