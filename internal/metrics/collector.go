package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventReplicaSelected   EventType = "replica_selected"
	EventAttemptCompleted  EventType = "attempt_completed"
	EventHealthChanged     EventType = "health_changed"
	EventWeightsRecomputed EventType = "weights_recomputed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Cluster    string
	Replica    string
	Attempt    int
	Verdict    replica.Verdict
	Duration   time.Duration
	StatusCode int
	Healthy    bool
	Weight     float64
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events that do not fit in the buffer
// are dropped and counted.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.metrics.IncrementDropped()
	}
}

// Dropped is the number of events Emit could not queue.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Observer reports every recomputed weight batch as one event per replica.
func (c *Collector) Observer() func(cluster replica.Cluster, batch map[replica.Replica]weight.Weight) {
	return func(cluster replica.Cluster, batch map[replica.Replica]weight.Weight) {
		for r, w := range batch {
			c.Emit(MetricEvent{
				Type:      EventWeightsRecomputed,
				Timestamp: w.Timestamp,
				Cluster:   cluster.String(),
				Replica:   r.String(),
				Weight:    w.Value,
			})
		}
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Cluster)

	case EventReplicaSelected:
		c.metrics.RecordSelection(event.Replica, event.Attempt)

	case EventAttemptCompleted:
		c.metrics.RecordAttempt(event.Replica, event.Verdict, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Replica, event.Healthy)

	case EventWeightsRecomputed:
		c.metrics.UpdateWeight(event.Cluster, event.Replica, event.Weight)

	default:
		c.logger.Warn("Unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
