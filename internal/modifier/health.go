package modifier

import "github.com/angeloszaimis/adaptive-balancer/internal/replica"

// HealthSource reports the latest probe result of a replica.
type HealthSource interface {
	IsHealthy(r replica.Replica) bool
}

// Health zeroes the weight of replicas failing their health probe. With a
// calculator minimum of 0 they are ordered behind every healthy replica.
type Health struct {
	source HealthSource
}

func NewHealth(source HealthSource) *Health {
	return &Health{source: source}
}

func (h *Health) Modify(_ replica.Cluster, r replica.Replica, weight *float64) {
	if !h.source.IsHealthy(r) {
		*weight = 0
	}
}

func (h *Health) Learn(replica.Outcome) {}
