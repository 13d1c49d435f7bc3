package metrics_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/metrics"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

var _ = Describe("Collector", func() {
	const replicaAddr = "10.0.0.1:8080"

	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	snapshot := func() metrics.Snapshot {
		return collector.Snapshot("weighted")
	}

	Describe("event processing", func() {
		It("should count requests per cluster", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Cluster: "orders/prod"})

			Eventually(func() int64 { return snapshot().TotalRequests }).Should(Equal(int64(1)))
		})

		It("should split first choices from failover selections", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventReplicaSelected, Replica: replicaAddr, Attempt: 0})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventReplicaSelected, Replica: replicaAddr, Attempt: 1})

			Eventually(func() int64 { return snapshot().Replicas[replicaAddr].Selections }).Should(Equal(int64(2)))
			Expect(snapshot().Replicas[replicaAddr].FirstChoices).To(Equal(int64(1)))
		})

		It("should record attempt verdicts and latency", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type: metrics.EventAttemptCompleted, Replica: replicaAddr,
				Verdict: replica.Accept, Duration: 100 * time.Millisecond, StatusCode: 200,
			})
			collector.Emit(metrics.MetricEvent{
				Type: metrics.EventAttemptCompleted, Replica: replicaAddr,
				Verdict: replica.Reject, Duration: 300 * time.Millisecond, StatusCode: 503,
			})
			collector.Emit(metrics.MetricEvent{
				Type: metrics.EventAttemptCompleted, Replica: replicaAddr,
				Verdict: replica.DontKnow, Duration: 200 * time.Millisecond,
			})

			Eventually(func() int64 { return snapshot().Replicas[replicaAddr].Unknown }).Should(Equal(int64(1)))

			rm := snapshot().Replicas[replicaAddr]
			Expect(rm.Accepted).To(Equal(int64(1)))
			Expect(rm.Rejected).To(Equal(int64(1)))
			Expect(rm.AvgResponse).To(Equal(200 * time.Millisecond))
			Expect(rm.StatusCodes).To(Equal(map[int]int64{200: 1, 503: 1}))
		})

		It("should track health flips", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventHealthChanged, Replica: replicaAddr, Healthy: true})

			Eventually(func() bool { return snapshot().Replicas[replicaAddr].Healthy }).Should(BeTrue())
		})

		It("should record weights handed to the observer", func() {
			collector.Start(ctx)

			collector.Observer()(replica.Cluster{Service: "orders", Environment: "prod"}, map[replica.Replica]weight.Weight{
				replicaAddr:     {Value: 1, Timestamp: time.Now()},
				"10.0.0.2:8080": {Value: 0.25, Timestamp: time.Now()},
			})

			Eventually(func() float64 { return snapshot().Replicas["10.0.0.2:8080"].Weight }).Should(Equal(0.25))
			Expect(snapshot().Replicas[replicaAddr].Weight).To(Equal(1.0))
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.EventChannel() <- metrics.MetricEvent{
					Type:      metrics.EventRequestReceived,
					Timestamp: time.Now(),
					Cluster:   "orders/prod",
				}
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 { return snapshot().TotalRequests }).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)

			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})

			Expect(small.Dropped()).To(Equal(int64(2)))
		})
	})

	Describe("handlers", func() {
		It("should serve the JSON snapshot", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Cluster: "orders/prod"})
			Eventually(func() int64 { return snapshot().TotalRequests }).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler("weighted").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(rec.Body.String()).To(ContainSubstring(`"strategy":"weighted"`))
			Expect(rec.Body.String()).To(ContainSubstring(`"total_requests":1`))
		})

		It("should serve the Prometheus exposition", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type: metrics.EventAttemptCompleted, Replica: replicaAddr,
				Verdict: replica.Accept, Duration: 10 * time.Millisecond,
			})
			Eventually(func() int64 { return snapshot().Replicas[replicaAddr].Accepted }).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

			Expect(rec.Body.String()).To(ContainSubstring(`balancer_attempts_total{replica="10.0.0.1:8080",verdict="accept"} 1`))
			Expect(rec.Body.String()).To(ContainSubstring(`balancer_attempt_duration_seconds_bucket`))
		})
	})
})
