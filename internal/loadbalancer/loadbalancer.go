package loadbalancer

import (
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/calculator"
	"github.com/angeloszaimis/adaptive-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/adaptive-balancer/internal/clusterstate"
	"github.com/angeloszaimis/adaptive-balancer/internal/modifier"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
	"github.com/angeloszaimis/adaptive-balancer/internal/strategy"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

// PinSettings boost a fixed set of preferred replicas.
type PinSettings struct {
	Multiplier float64
	Replicas   []replica.Replica
}

// Settings select the orderer and the modifiers of the weight chain. A nil
// modifier section leaves that modifier out.
type Settings struct {
	Strategy string
	Weights  calculator.Settings
	Adaptive *modifier.AdaptiveSettings
	Breaker  *modifier.BreakerSettings
	Pin      *PinSettings
}

type Option func(*options)

type options struct {
	health   modifier.HealthSource
	observer modifier.Observer
	now      func() time.Time
}

// WithHealthSource appends a health modifier fed by source to the chain.
func WithHealthSource(source modifier.HealthSource) Option {
	return func(o *options) { o.health = source }
}

// WithObserver receives every weight batch stored by the adaptive modifier.
func WithObserver(observer modifier.Observer) Option {
	return func(o *options) { o.observer = observer }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// LoadBalancer orders the replicas of a cluster for each call and learns
// from the outcome of every attempt.
type LoadBalancer struct {
	orderer    strategy.Orderer
	calculator *calculator.Calculator
	adaptive   *modifier.Adaptive
	breaker    *modifier.Breaker
	registry   *clusterstate.Registry
	logger     *slog.Logger
}

// NewLoadBalancer builds the modifier chain in the order adaptive, breaker,
// pin, health.
func NewLoadBalancer(settings Settings, logger *slog.Logger, opts ...Option) (*LoadBalancer, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	orderer, err := strategy.New(settings.Strategy)
	if err != nil {
		return nil, err
	}

	lb := &LoadBalancer{
		orderer:  orderer,
		registry: clusterstate.NewRegistry(logger),
		logger:   logger,
	}

	var chain []modifier.Modifier

	if settings.Adaptive != nil {
		lb.adaptive, err = modifier.NewAdaptive(*settings.Adaptive, lb.registry, logger,
			modifier.WithClock(o.now),
			modifier.WithObserver(o.observer))
		if err != nil {
			return nil, fmt.Errorf("adaptive modifier: %w", err)
		}
		chain = append(chain, lb.adaptive)
	}

	if settings.Breaker != nil {
		lb.breaker, err = modifier.NewBreaker(*settings.Breaker, logger, modifier.WithBreakerClock(o.now))
		if err != nil {
			return nil, fmt.Errorf("breaker modifier: %w", err)
		}
		chain = append(chain, lb.breaker)
	}

	if settings.Pin != nil && len(settings.Pin.Replicas) > 0 {
		pin, err := modifier.NewPin(settings.Pin.Multiplier, settings.Pin.Replicas...)
		if err != nil {
			return nil, fmt.Errorf("pin modifier: %w", err)
		}
		chain = append(chain, pin)
	}

	if o.health != nil {
		chain = append(chain, modifier.NewHealth(o.health))
	}

	lb.calculator, err = calculator.New(settings.Weights, chain...)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}

	logger.Info("Load balancer ready",
		slog.String("strategy", settings.Strategy),
		slog.Int("modifiers", len(chain)))

	return lb, nil
}

// Order returns the visiting order of replicas for one call to cluster.
// Weights are computed when iteration starts.
func (lb *LoadBalancer) Order(cluster replica.Cluster, replicas []replica.Replica) iter.Seq[replica.Replica] {
	return lb.orderer.Order(replicas, func(r replica.Replica) float64 {
		return lb.calculator.Calculate(cluster, r)
	})
}

// Learn must be called exactly once per completed attempt.
func (lb *LoadBalancer) Learn(outcome replica.Outcome) {
	lb.calculator.Learn(outcome)
}

// Evaluate runs the weight chain for every replica without ordering them.
func (lb *LoadBalancer) Evaluate(cluster replica.Cluster, replicas []replica.Replica) map[replica.Replica]float64 {
	result := make(map[replica.Replica]float64, len(replicas))
	for _, r := range replicas {
		result[r] = lb.calculator.Calculate(cluster, r)
	}
	return result
}

// Weights returns the adaptive weights currently stored for cluster.
func (lb *LoadBalancer) Weights(cluster replica.Cluster) map[replica.Replica]weight.Weight {
	if lb.adaptive == nil {
		return map[replica.Replica]weight.Weight{}
	}
	return lb.adaptive.Weights(cluster)
}

// Snapshot returns the smoothed statistics retained for cluster.
func (lb *LoadBalancer) Snapshot(cluster replica.Cluster) statistic.ClusterSnapshot {
	if lb.adaptive == nil {
		return statistic.EmptySnapshot()
	}
	return lb.adaptive.History(cluster)
}

// Pending returns the outcomes of cluster reported since the last
// recomputation cycle.
func (lb *LoadBalancer) Pending(cluster replica.Cluster) statistic.Totals {
	if lb.adaptive == nil {
		return statistic.Totals{}
	}
	return lb.adaptive.Pending(cluster)
}

// Clusters lists every cluster the adaptive modifier has seen.
func (lb *LoadBalancer) Clusters() []replica.Cluster {
	return lb.registry.Keys()
}

// CircuitStates reports the breaker state of every replica of cluster that
// has reported an outcome.
func (lb *LoadBalancer) CircuitStates(cluster replica.Cluster) map[replica.Replica]circuitbreaker.State {
	if lb.breaker == nil {
		return map[replica.Replica]circuitbreaker.State{}
	}
	return lb.breaker.States(cluster)
}

// Evict drops all adaptive and breaker state of cluster. It reports whether
// the cluster had adaptive state.
func (lb *LoadBalancer) Evict(cluster replica.Cluster) bool {
	if lb.breaker != nil {
		lb.breaker.Evict(cluster)
	}
	return lb.registry.Evict(cluster)
}
