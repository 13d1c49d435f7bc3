package modifier

import (
	"log/slog"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/adaptive-balancer/internal/clusterstate"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

// AdaptiveSettings tune the adaptive weighing of replicas.
type AdaptiveSettings struct {
	UpdatePeriod                  time.Duration
	PenaltyMultiplier             float64
	StatisticSmoothingConstant    time.Duration
	WeightsRaiseSmoothingConstant time.Duration
	WeightsDownSmoothingConstant  time.Duration
	WeightsTTL                    time.Duration
	StatisticTTL                  time.Duration
	MinWeight                     float64
	MaxWeight                     float64
	InitialWeight                 float64
	Sensitivity                   float64
	StatusRpsThreshold            float64
}

// DefaultAdaptiveSettings favours reacting to degradation within seconds and
// to recovery within minutes.
func DefaultAdaptiveSettings() AdaptiveSettings {
	return AdaptiveSettings{
		UpdatePeriod:                  10 * time.Second,
		PenaltyMultiplier:             5,
		StatisticSmoothingConstant:    time.Minute,
		WeightsRaiseSmoothingConstant: time.Minute,
		WeightsDownSmoothingConstant:  10 * time.Second,
		WeightsTTL:                    10 * time.Minute,
		StatisticTTL:                  10 * time.Minute,
		MinWeight:                     0.005,
		MaxWeight:                     1,
		InitialWeight:                 1,
		Sensitivity:                   4,
		StatusRpsThreshold:            5,
	}
}

func (s AdaptiveSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.UpdatePeriod, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.PenaltyMultiplier, validation.Min(0.0)),
		validation.Field(&s.StatisticSmoothingConstant, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.WeightsRaiseSmoothingConstant, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.WeightsDownSmoothingConstant, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.WeightsTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.StatisticTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.MinWeight, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.MaxWeight, validation.Min(s.MinWeight)),
		validation.Field(&s.InitialWeight, validation.Min(s.MinWeight), validation.Max(s.MaxWeight)),
		validation.Field(&s.Sensitivity, validation.Min(0.0)),
		validation.Field(&s.StatusRpsThreshold, validation.Min(0.0)),
	)
}

func (s AdaptiveSettings) scorerSettings() weight.ScorerSettings {
	return weight.ScorerSettings{
		UpdatePeriod:           s.UpdatePeriod,
		StatusRpsThreshold:     s.StatusRpsThreshold,
		Sensitivity:            s.Sensitivity,
		MinWeight:              s.MinWeight,
		RaiseSmoothingConstant: s.WeightsRaiseSmoothingConstant,
		DownSmoothingConstant:  s.WeightsDownSmoothingConstant,
	}
}

// Observer receives every batch of weights a recomputation cycle stores.
type Observer func(cluster replica.Cluster, batch map[replica.Replica]weight.Weight)

type AdaptiveOption func(*Adaptive)

// WithScorer replaces the statistical scorer.
func WithScorer(scorer weight.Scorer) AdaptiveOption {
	return func(a *Adaptive) { a.scorer = scorer }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AdaptiveOption {
	return func(a *Adaptive) { a.now = now }
}

func WithObserver(observer Observer) AdaptiveOption {
	return func(a *Adaptive) { a.observer = observer }
}

// Adaptive learns from call outcomes and multiplies each replica's weight by
// how it compares with the rest of its cluster.
//
// Recomputation is driven by traffic: the first Modify after an update period
// has elapsed recomputes the weights of the whole cluster while concurrent
// callers read the previous ones.
type Adaptive struct {
	settings AdaptiveSettings
	registry *clusterstate.Registry
	scorer   weight.Scorer
	now      func() time.Time
	observer Observer
	logger   *slog.Logger
}

func NewAdaptive(settings AdaptiveSettings, registry *clusterstate.Registry, logger *slog.Logger, opts ...AdaptiveOption) (*Adaptive, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a := &Adaptive{
		settings: settings,
		registry: registry,
		scorer:   weight.NewStatisticalScorer(settings.scorerSettings()),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

func (a *Adaptive) state(cluster replica.Cluster) *clusterstate.State {
	return a.registry.GetOrCreate(cluster, func() *clusterstate.State {
		return clusterstate.New(a.now(), a.settings.StatisticTTL, a.settings.WeightsTTL)
	})
}

// Learn records the outcome. It never waits for a recomputation.
func (a *Adaptive) Learn(outcome replica.Outcome) {
	a.state(outcome.Cluster).Statistic().Report(outcome)
}

func (a *Adaptive) Modify(cluster replica.Cluster, r replica.Replica, w *float64) {
	state := a.state(cluster)
	now := a.now()

	if a.due(state, now) && state.TryAcquire() {
		a.recompute(cluster, state, now)
	}

	stored, ok := state.Weights().Get(r, now)
	if !ok {
		*w *= a.settings.InitialWeight
		return
	}

	*w *= math.Max(a.settings.MinWeight, math.Min(a.settings.MaxWeight, stored.Value*a.settings.MaxWeight))
}

func (a *Adaptive) due(state *clusterstate.State, now time.Time) bool {
	return now.Sub(state.LastUpdate()) > a.settings.UpdatePeriod
}

func (a *Adaptive) recompute(cluster replica.Cluster, state *clusterstate.State, now time.Time) {
	defer state.Release()

	// Another caller may have finished a cycle between our check and the gate.
	if !a.due(state, now) {
		return
	}
	state.SetLastUpdate(now)

	started := time.Now()

	raw := state.SwapStatistic()
	snapshot := raw.Snapshot(now, state.History().Get(), statistic.SnapshotSettings{
		PenaltyMultiplier: a.settings.PenaltyMultiplier,
		SmoothingConstant: a.settings.StatisticSmoothingConstant,
	})
	state.History().Update(snapshot)

	batch := make(map[replica.Replica]weight.Weight, len(snapshot.Replicas))
	best := 0.0

	for r, stat := range snapshot.Replicas {
		previous, ok := state.Weights().Get(r, now)
		if !ok {
			previous = weight.Weight{Value: a.settings.InitialWeight, Timestamp: now.Add(-a.settings.UpdatePeriod)}
		}

		w := a.scorer.Score(*snapshot.Cluster, stat, previous)
		batch[r] = w
		best = math.Max(best, w.Value)
	}

	weight.Normalize(batch, best)
	state.Weights().Update(batch)

	if a.observer != nil {
		a.observer(cluster, batch)
	}

	a.logger.Debug("Weights recomputed",
		slog.String("cluster", cluster.String()),
		slog.Int("replicas", len(batch)),
		slog.Int64("calls", snapshot.Cluster.TotalCount),
		slog.Duration("took", time.Since(started)))
}

// Weights returns the fresh stored weights of cluster.
func (a *Adaptive) Weights(cluster replica.Cluster) map[replica.Replica]weight.Weight {
	state, ok := a.registry.Get(cluster)
	if !ok {
		return map[replica.Replica]weight.Weight{}
	}
	return state.Weights().All(a.now())
}

// Pending returns the cluster-wide sums not yet folded into a snapshot.
func (a *Adaptive) Pending(cluster replica.Cluster) statistic.Totals {
	state, ok := a.registry.Get(cluster)
	if !ok {
		return statistic.Totals{}
	}
	return state.Statistic().ClusterTotals()
}

// History returns the statistics retained for cluster.
func (a *Adaptive) History(cluster replica.Cluster) statistic.ClusterSnapshot {
	state, ok := a.registry.Get(cluster)
	if !ok {
		return statistic.EmptySnapshot()
	}
	return state.History().Get()
}
