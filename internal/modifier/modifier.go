package modifier

import "github.com/angeloszaimis/adaptive-balancer/internal/replica"

// Modifier is one stage of the weight calculation chain.
type Modifier interface {
	// Modify adjusts the weight of r in place for a call to cluster.
	Modify(cluster replica.Cluster, r replica.Replica, weight *float64)

	// Learn receives the outcome of every completed call attempt.
	Learn(outcome replica.Outcome)
}
