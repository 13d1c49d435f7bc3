package simulation_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/calculator"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/modifier"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/simulation"
	"github.com/angeloszaimis/adaptive-balancer/internal/strategy"
)

var _ = Describe("LoadScenario", func() {
	It("should load a scenario with durations", func() {
		s, err := simulation.LoadScenario("testdata/degrading.yaml")
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Name).To(Equal("degrading-replica"))
		Expect(s.Duration).To(Equal(4 * time.Minute))
		Expect(s.ReportInterval).To(Equal(time.Minute))
		Expect(s.Replicas).To(HaveLen(3))
		Expect(s.Replicas[2].Degradations[0].Latency).To(Equal(300 * time.Millisecond))
		Expect(s.Cluster().String()).To(Equal("orders/sim"))
	})

	It("should name invalid fields by their scenario keys", func() {
		_, err := simulation.LoadScenario("testdata/invalid.yaml")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("replicas"))
		Expect(err.Error()).To(ContainSubstring("error_rate"))
		Expect(err.Error()).NotTo(ContainSubstring("ErrorRate"))
	})

	It("should fail on a missing file", func() {
		_, err := simulation.LoadScenario("testdata/missing.yaml")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Runner", func() {
	var (
		logger   *slog.Logger
		settings loadbalancer.Settings
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		adaptive := modifier.DefaultAdaptiveSettings()
		settings = loadbalancer.Settings{
			Strategy: strategy.TypeWeighted,
			Weights:  calculator.Settings{MinWeight: 0, MaxWeight: math.Inf(1), InitialWeight: 1},
			Adaptive: &adaptive,
		}
	})

	It("should move first choices away from a degraded replica", func() {
		scenario, err := simulation.LoadScenario("testdata/degrading.yaml")
		Expect(err).NotTo(HaveOccurred())

		report, err := simulation.NewRunner(scenario, settings, logger).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Requests).To(BeNumerically("~", 24000, 10))
		Expect(report.Windows).To(HaveLen(4))

		slow := scenario.Replicas[2].Address
		Expect(report.Windows[0].Share(replicaOf(slow))).To(BeNumerically(">", 0.2))
		Expect(report.Windows[2].Share(replicaOf(slow))).To(BeNumerically("<", 0.1))

		Expect(report.Weights).To(HaveLen(3))
		Expect(report.Snapshot.Cluster).NotTo(BeNil())
	})

	It("should count every attempt against failing replicas", func() {
		scenario := &simulation.Scenario{
			Name:           "all-failing",
			Service:        "orders",
			Environment:    "sim",
			Duration:       10 * time.Second,
			Rate:           10,
			Burst:          1,
			MaxAttempts:    2,
			ReportInterval: 10 * time.Second,
			Replicas: []simulation.ReplicaProfile{
				{Address: "10.0.0.1:8080", Latency: time.Millisecond, ErrorRate: 1},
				{Address: "10.0.0.2:8080", Latency: time.Millisecond, ErrorRate: 1},
			},
		}
		Expect(scenario.Validate()).To(Succeed())

		report, err := simulation.NewRunner(scenario, settings, logger).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Succeeded).To(BeZero())
		Expect(report.Failed).To(Equal(report.Requests))
		Expect(report.Attempts).To(Equal(2 * report.Requests))
		Expect(report.SuccessRate()).To(BeZero())

		first, ok := report.Replica("10.0.0.1:8080")
		Expect(ok).To(BeTrue())
		Expect(first.Rejected).To(Equal(first.Attempts))
		Expect(first.MeanLatency()).To(Equal(time.Millisecond))
	})

	It("should stop when the context is cancelled", func() {
		scenario, _ := simulation.LoadScenario("testdata/degrading.yaml")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := simulation.NewRunner(scenario, settings, logger).Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("should reject an unknown strategy", func() {
		scenario, _ := simulation.LoadScenario("testdata/degrading.yaml")
		settings.Strategy = "fastest"

		_, err := simulation.NewRunner(scenario, settings, logger).Run(context.Background())
		Expect(err).To(HaveOccurred())
	})
})

func replicaOf(addr string) replica.Replica {
	return replica.Replica(addr)
}
