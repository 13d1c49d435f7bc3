package replica

import (
	"fmt"
	"time"
)

// Replica identifies one endpoint of a cluster. Two replicas are the same
// replica when their addresses are equal.
type Replica string

func (r Replica) String() string {
	return string(r)
}

// Verdict classifies the result of a single call attempt.
type Verdict int

const (
	DontKnow Verdict = iota
	Accept
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case DontKnow:
		return "dont_know"
	default:
		return "unknown"
	}
}

// Cluster keys the state kept for one logical service in one environment.
type Cluster struct {
	Service     string
	Environment string
}

func (c Cluster) String() string {
	return fmt.Sprintf("%s/%s", c.Service, c.Environment)
}

// Outcome is reported once per completed call attempt.
type Outcome struct {
	Cluster Cluster
	Replica Replica
	Verdict Verdict
	Elapsed time.Duration
}

// Accepted reports whether the outcome counts as a successful call.
func (o Outcome) Accepted() bool {
	return o.Verdict == Accept
}
