package weight

import (
	"math"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
)

const epsilon = 1e-9

// Scorer compares a replica with its cluster and produces a new weight.
type Scorer interface {
	Score(cluster, replica statistic.AggregatedStatistic, previous Weight) Weight
}

// ScorerSettings tune StatisticalScorer.
type ScorerSettings struct {
	UpdatePeriod           time.Duration
	StatusRpsThreshold     float64
	Sensitivity            float64
	MinWeight              float64
	RaiseSmoothingConstant time.Duration
	DownSmoothingConstant  time.Duration
}

// StatisticalScorer scores replicas with a two-sample comparison against the
// cluster. Under low traffic it compares error fractions, otherwise latency.
type StatisticalScorer struct {
	settings ScorerSettings
}

func NewStatisticalScorer(settings ScorerSettings) *StatisticalScorer {
	return &StatisticalScorer{settings: settings}
}

func (s *StatisticalScorer) Score(cluster, replica statistic.AggregatedStatistic, previous Weight) Weight {
	var raw float64
	if s.lowTraffic(cluster) {
		raw = statusScore(cluster, replica)
	} else {
		raw = latencyScore(cluster, replica)
	}

	value := s.sharpen(raw)
	value = math.Max(s.settings.MinWeight, math.Min(1, value))

	constant := s.settings.DownSmoothingConstant
	if value > previous.Value {
		constant = s.settings.RaiseSmoothingConstant
	}

	return Weight{
		Value:     statistic.SmoothValue(value, previous.Value, replica.Timestamp, previous.Timestamp, constant),
		Timestamp: replica.Timestamp,
	}
}

func (s *StatisticalScorer) lowTraffic(cluster statistic.AggregatedStatistic) bool {
	rps := float64(cluster.TotalCount) / s.settings.UpdatePeriod.Seconds()
	return rps <= s.settings.StatusRpsThreshold
}

func (s *StatisticalScorer) sharpen(raw float64) float64 {
	if s.settings.Sensitivity < epsilon {
		return 1
	}
	return math.Pow(raw, s.settings.Sensitivity)
}

func latencyScore(cluster, replica statistic.AggregatedStatistic) float64 {
	stdDev := math.Sqrt(replica.StdDev*replica.StdDev + cluster.StdDev*cluster.StdDev)
	return CDF(cluster.Mean, replica.Mean, stdDev)
}

func statusScore(cluster, replica statistic.AggregatedStatistic) float64 {
	clusterErrors := roundFraction(cluster.ErrorFraction)
	replicaErrors := roundFraction(replica.ErrorFraction)

	n1 := float64(cluster.TotalCount)
	n2 := float64(replica.TotalCount)

	var stdDev float64
	if n1 > 0 && n2 > 0 {
		pooled := (n1*clusterErrors + n2*replicaErrors) / (n1 + n2)
		stdDev = math.Sqrt(math.Max(0, pooled*(1-pooled)*(1/n1+1/n2)))
	}

	return CDF(clusterErrors, replicaErrors, stdDev)
}

func roundFraction(f float64) float64 {
	return math.Round(f*1e5) / 1e5
}

// CDF approximates the normal cumulative distribution at x with the logistic
// fit 1/(1+exp(-y(1.5976+0.070566y^2))). With a zero stddev it degrades to a
// step: 0 when mean > x, 1 when mean < x and 0.5 on a tie.
func CDF(x, mean, stdDev float64) float64 {
	if stdDev < epsilon {
		switch {
		case mean > x:
			return 0
		case mean < x:
			return 1
		default:
			return 0.5
		}
	}

	y := (x - mean) / stdDev
	return 1 / (1 + math.Exp(-y*(1.5976+0.070566*y*y)))
}
