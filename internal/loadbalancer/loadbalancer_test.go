package loadbalancer_test

import (
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/calculator"
	"github.com/angeloszaimis/adaptive-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/modifier"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/strategy"
	"github.com/angeloszaimis/adaptive-balancer/internal/weight"
)

type healthMap struct {
	mutex   sync.Mutex
	healthy map[replica.Replica]bool
}

func (h *healthMap) IsHealthy(r replica.Replica) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.healthy[r]
}

var _ = Describe("LoadBalancer", func() {
	var (
		settings loadbalancer.Settings
		logger   *slog.Logger
		orders   replica.Cluster
		replicas []replica.Replica
		now      time.Time
		clock    func() time.Time
	)

	BeforeEach(func() {
		adaptive := modifier.DefaultAdaptiveSettings()
		settings = loadbalancer.Settings{
			Strategy: strategy.TypeWeighted,
			Weights:  calculator.Settings{MinWeight: 0, MaxWeight: math.Inf(1), InitialWeight: 1},
			Adaptive: &adaptive,
		}
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		orders = replica.Cluster{Service: "orders", Environment: "prod"}
		replicas = []replica.Replica{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080"}
		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		clock = func() time.Time { return now }
	})

	Describe("NewLoadBalancer", func() {
		It("should create a load balancer with the given strategy", func() {
			lb, err := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(lb.Clusters()).To(BeEmpty())
		})

		It("should reject an unknown strategy", func() {
			settings.Strategy = "ip-hash"
			_, err := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(err).To(MatchError(strategy.ErrUnknownStrategy))
		})

		It("should reject invalid weight bounds", func() {
			settings.Weights = calculator.Settings{MinWeight: 1, MaxWeight: 0.5, InitialWeight: 1}
			_, err := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an invalid pin multiplier", func() {
			settings.Pin = &loadbalancer.PinSettings{Multiplier: 0.5, Replicas: replicas[:1]}
			_, err := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Order", func() {
		It("should return every replica once", func() {
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(slices.Collect(lb.Order(orders, replicas))).To(ConsistOf(replicas))
		})

		It("should always try a pinned replica first", func() {
			settings.Pin = &loadbalancer.PinSettings{Multiplier: math.Inf(1), Replicas: []replica.Replica{"10.0.0.3:8080"}}
			lb, err := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 100; i++ {
				Expect(slices.Collect(lb.Order(orders, replicas))[0]).To(Equal(replica.Replica("10.0.0.3:8080")))
			}
		})

		It("should put unhealthy replicas last", func() {
			health := &healthMap{healthy: map[replica.Replica]bool{
				"10.0.0.1:8080": false, "10.0.0.2:8080": true, "10.0.0.3:8080": true,
			}}
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger, loadbalancer.WithHealthSource(health))

			for i := 0; i < 100; i++ {
				Expect(slices.Collect(lb.Order(orders, replicas))[2]).To(Equal(replica.Replica("10.0.0.1:8080")))
			}
		})

		It("should send most first attempts to the fast replica once it has learned", func() {
			var observed []map[replica.Replica]weight.Weight
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger,
				loadbalancer.WithClock(clock),
				loadbalancer.WithObserver(func(_ replica.Cluster, batch map[replica.Replica]weight.Weight) {
					observed = append(observed, batch)
				}))

			lb.Order(orders, replicas)
			for i := 0; i < 100; i++ {
				lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.1:8080", Verdict: replica.Accept, Elapsed: 5 * time.Millisecond})
				lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.2:8080", Verdict: replica.Accept, Elapsed: 400 * time.Millisecond})
				lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.3:8080", Verdict: replica.Reject, Elapsed: 400 * time.Millisecond})
			}
			now = now.Add(time.Minute)

			first := make(map[replica.Replica]int)
			for i := 0; i < 1000; i++ {
				for r := range lb.Order(orders, replicas) {
					first[r]++
					break
				}
			}

			Expect(observed).To(HaveLen(1))
			Expect(first["10.0.0.1:8080"]).To(BeNumerically(">", first["10.0.0.2:8080"]))
			Expect(first["10.0.0.1:8080"]).To(BeNumerically(">", first["10.0.0.3:8080"]))

			weights := lb.Weights(orders)
			Expect(weights).To(HaveLen(3))
			Expect(weights["10.0.0.1:8080"].Value).To(BeNumerically("~", 1.0, 1e-9))

			snapshot := lb.Snapshot(orders)
			Expect(snapshot.Cluster).NotTo(BeNil())
			Expect(snapshot.Cluster.TotalCount).To(Equal(int64(300)))
		})
	})

	Describe("Evaluate", func() {
		It("should compute the final weight of each replica", func() {
			breaker := modifier.BreakerSettings{FailureThreshold: 1, ResetTimeout: time.Hour, DownMultiplier: 0.5}
			settings.Breaker = &breaker
			settings.Adaptive = nil
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger)

			lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.2:8080", Verdict: replica.Reject})

			weights := lb.Evaluate(orders, replicas)
			Expect(weights).To(Equal(map[replica.Replica]float64{
				"10.0.0.1:8080": 1,
				"10.0.0.2:8080": 0.5,
				"10.0.0.3:8080": 1,
			}))
			Expect(lb.CircuitStates(orders)).To(HaveKeyWithValue(replica.Replica("10.0.0.2:8080"), circuitbreaker.StateOpen))
		})

		It("should restore a tripped replica once the reset timeout passes on the balancer clock", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			breaker := modifier.BreakerSettings{FailureThreshold: 1, ResetTimeout: time.Minute, DownMultiplier: 0.5}
			settings.Breaker = &breaker
			settings.Adaptive = nil
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger, loadbalancer.WithClock(func() time.Time { return now }))

			lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.2:8080", Verdict: replica.Reject})
			Expect(lb.Evaluate(orders, replicas)["10.0.0.2:8080"]).To(Equal(0.5))

			now = now.Add(time.Minute)
			Expect(lb.Evaluate(orders, replicas)["10.0.0.2:8080"]).To(Equal(1.0))

			lb.Evict(orders)
			Expect(lb.CircuitStates(orders)).To(BeEmpty())
		})
	})

	Describe("cluster state", func() {
		It("should list and evict clusters", func() {
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger)
			lb.Learn(replica.Outcome{Cluster: orders, Replica: "10.0.0.1:8080", Verdict: replica.Accept})

			Expect(lb.Clusters()).To(ConsistOf(orders))
			Expect(lb.Pending(orders).TotalCount).To(Equal(int64(1)))
			Expect(lb.Evict(orders)).To(BeTrue())
			Expect(lb.Clusters()).To(BeEmpty())
		})

		It("should report empty views without the adaptive modifier", func() {
			settings.Adaptive = nil
			lb, _ := loadbalancer.NewLoadBalancer(settings, logger)
			Expect(lb.Weights(orders)).To(BeEmpty())
			Expect(lb.Snapshot(orders).Replicas).To(BeEmpty())
			Expect(lb.Pending(orders)).To(BeZero())
		})
	})
})
