package backend

import (
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Pool is the fixed set of backends of one cluster. It reports backend
// health to the weight chain.
type Pool struct {
	backends  []*Backend
	replicas  []replica.Replica
	byReplica map[replica.Replica]*Backend
}

// NewPool indexes backends by replica. A repeated replica keeps its first
// backend but still appears twice in Replicas, which raises its share of
// first choices under uniform weights.
func NewPool(backends ...*Backend) *Pool {
	p := &Pool{
		replicas:  make([]replica.Replica, 0, len(backends)),
		byReplica: make(map[replica.Replica]*Backend, len(backends)),
	}

	for _, b := range backends {
		p.replicas = append(p.replicas, b.Replica())
		if _, exists := p.byReplica[b.Replica()]; !exists {
			p.byReplica[b.Replica()] = b
			p.backends = append(p.backends, b)
		}
	}

	return p
}

// Backends returns one backend per distinct replica.
func (p *Pool) Backends() []*Backend {
	return p.backends
}

// Replicas returns the candidate list handed to the orderer. Callers must not
// modify it.
func (p *Pool) Replicas() []replica.Replica {
	return p.replicas
}

func (p *Pool) Get(r replica.Replica) (*Backend, bool) {
	b, ok := p.byReplica[r]
	return b, ok
}

// IsHealthy reports unknown replicas as unhealthy.
func (p *Pool) IsHealthy(r replica.Replica) bool {
	b, ok := p.byReplica[r]
	return ok && b.IsHealthy()
}

func (p *Pool) HealthyCount() int {
	count := 0
	for _, b := range p.byReplica {
		if b.IsHealthy() {
			count++
		}
	}
	return count
}
