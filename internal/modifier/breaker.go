package modifier

import (
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/adaptive-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// BreakerSettings configure the breaker modifier.
type BreakerSettings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	DownMultiplier   float64
}

func (s BreakerSettings) circuitSettings() circuitbreaker.Settings {
	return circuitbreaker.Settings{
		FailureThreshold: s.FailureThreshold,
		ResetTimeout:     s.ResetTimeout,
	}
}

func (s BreakerSettings) Validate() error {
	if err := s.circuitSettings().Validate(); err != nil {
		return err
	}

	return validation.ValidateStruct(&s,
		validation.Field(&s.DownMultiplier,
			validation.Required,
			validation.By(func(value interface{}) error {
				m, _ := value.(float64)
				if m <= 0 || m >= 1 {
					return validation.NewError("validation_invalid_multiplier", "must be strictly between 0 and 1")
				}
				return nil
			}),
		),
	)
}

type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	now func() time.Time
}

// WithBreakerClock replaces time.Now for the reset timeouts.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(o *breakerOptions) { o.now = now }
}

// Breaker multiplies the weight of replicas with an open circuit by
// DownMultiplier. Circuits open after FailureThreshold consecutive rejects
// and are kept per cluster.
type Breaker struct {
	breakers       *circuitbreaker.Registry
	downMultiplier float64
}

func NewBreaker(settings BreakerSettings, logger *slog.Logger, opts ...BreakerOption) (*Breaker, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := breakerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	registry := circuitbreaker.NewRegistry(settings.circuitSettings(),
		circuitbreaker.WithClock(o.now),
		circuitbreaker.WithOnChange(func(key circuitbreaker.Key, from, to circuitbreaker.State) {
			logger.Warn("Circuit state changed",
				slog.String("cluster", key.Cluster.String()),
				slog.String("replica", string(key.Replica)),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}))

	return &Breaker{
		breakers:       registry,
		downMultiplier: settings.DownMultiplier,
	}, nil
}

// Modify treats a replica without recorded outcomes as closed.
func (b *Breaker) Modify(cluster replica.Cluster, r replica.Replica, weight *float64) {
	cb, ok := b.breakers.Lookup(circuitbreaker.Key{Cluster: cluster, Replica: r})
	if ok && !cb.Allow() {
		*weight *= b.downMultiplier
	}
}

func (b *Breaker) Learn(outcome replica.Outcome) {
	if outcome.Verdict == replica.DontKnow {
		return
	}
	b.breakers.Get(circuitbreaker.Key{Cluster: outcome.Cluster, Replica: outcome.Replica}).Record(outcome.Verdict)
}

// States reports the circuit state of every replica of cluster seen so far.
func (b *Breaker) States(cluster replica.Cluster) map[replica.Replica]circuitbreaker.State {
	return b.breakers.States(cluster)
}

func (b *Breaker) Evict(cluster replica.Cluster) {
	b.breakers.Evict(cluster)
}
