// Package metrics collects balancer events off the request path.
//
// Events flow through a buffered channel into a single goroutine that keeps:
//   - Requests per cluster
//   - Selections per replica, split by first choice
//   - Attempt verdicts, latency percentiles (P50, P95, P99) and status codes
//   - Health status and the latest adaptive weight per replica
//
// The same updates are mirrored into a VictoriaMetrics set exposed in the
// Prometheus text format.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventAttemptCompleted,
//		Replica:  "10.0.0.1:8080",
//		Verdict:  replica.Accept,
//		Duration: 150 * time.Millisecond,
//	})
//
//	snapshot := collector.Snapshot("weighted")
package metrics
