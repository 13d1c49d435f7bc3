package simulation

import (
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

// Report summarizes a finished run.
type Report struct {
	Scenario  string
	Strategy  string
	Requests  int
	Succeeded int
	Failed    int
	Attempts  int
	Replicas  []ReplicaReport
	Windows   []Window
	Weights   map[replica.Replica]weight.Weight
	Snapshot  statistic.ClusterSnapshot
	Elapsed   time.Duration
}

type ReplicaReport struct {
	Replica      replica.Replica
	FirstChoices int
	Attempts     int
	Accepted     int
	Rejected     int
	TotalLatency time.Duration
}

func (r ReplicaReport) MeanLatency() time.Duration {
	if r.Attempts == 0 {
		return 0
	}
	return r.TotalLatency / time.Duration(r.Attempts)
}

// FirstChoiceShare is the fraction of requests that tried r first.
func (r ReplicaReport) FirstChoiceShare(requests int) float64 {
	if requests == 0 {
		return 0
	}
	return float64(r.FirstChoices) / float64(requests)
}

// Window is the first-choice distribution over one report interval.
type Window struct {
	Start        time.Duration
	Requests     int
	FirstChoices map[replica.Replica]int
}

func (w Window) Share(r replica.Replica) float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.FirstChoices[r]) / float64(w.Requests)
}

// SuccessRate is the share of requests accepted by any attempt.
func (r Report) SuccessRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Requests)
}

// Replica returns the report of addr.
func (r Report) Replica(addr replica.Replica) (ReplicaReport, bool) {
	for _, rr := range r.Replicas {
		if rr.Replica == addr {
			return rr, true
		}
	}
	return ReplicaReport{}, false
}
