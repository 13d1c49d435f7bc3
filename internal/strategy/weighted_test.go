package strategy_test

import (
	"math"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/strategy"
)

func weights(m map[replica.Replica]float64) strategy.WeightFunc {
	return func(r replica.Replica) float64 { return m[r] }
}

func firstDrawn(o strategy.Orderer, replicas []replica.Replica, weigh strategy.WeightFunc, trials int) map[replica.Replica]int {
	counts := make(map[replica.Replica]int)
	for i := 0; i < trials; i++ {
		for r := range o.Order(replicas, weigh) {
			counts[r]++
			break
		}
	}
	return counts
}

var _ = Describe("Weighted", func() {
	var orderer *strategy.Weighted

	BeforeEach(func() {
		orderer = strategy.NewWeighted()
	})

	Context("with fewer than two replicas", func() {
		It("should return the input untouched without weighing", func() {
			calls := 0
			weigh := func(replica.Replica) float64 { calls++; return 1 }

			Expect(slices.Collect(orderer.Order(nil, weigh))).To(BeEmpty())
			Expect(slices.Collect(orderer.Order([]replica.Replica{"a"}, weigh))).To(Equal([]replica.Replica{"a"}))
			Expect(calls).To(BeZero())
		})
	})

	It("should place infinite weights first and zero weights last", func() {
		replicas := []replica.Replica{"zero-1", "mid", "inf-1", "low", "zero-2", "inf-2", "high"}
		weigh := weights(map[replica.Replica]float64{
			"inf-1": math.Inf(1), "inf-2": math.Inf(1),
			"high": 1, "mid": 0.5, "low": 0.01,
			"zero-1": 0, "zero-2": 0,
		})

		for i := 0; i < 500; i++ {
			order := slices.Collect(orderer.Order(replicas, weigh))

			Expect(order[:2]).To(ConsistOf(replica.Replica("inf-1"), replica.Replica("inf-2")))
			Expect(order[2:5]).To(ConsistOf(replica.Replica("high"), replica.Replica("mid"), replica.Replica("low")))
			Expect(order[5:]).To(ConsistOf(replica.Replica("zero-1"), replica.Replica("zero-2")))
		}
	})

	It("should treat NaN and denormal weights as zero", func() {
		replicas := []replica.Replica{"nan", "tiny", "ok"}
		weigh := weights(map[replica.Replica]float64{
			"nan": math.NaN(), "tiny": math.SmallestNonzeroFloat64, "ok": 0.1,
		})

		for i := 0; i < 100; i++ {
			order := slices.Collect(orderer.Order(replicas, weigh))
			Expect(order[0]).To(Equal(replica.Replica("ok")))
		}
	})

	It("should emit every replica exactly once, duplicates included", func() {
		replicas := []replica.Replica{"a", "a", "b", "c", "c", "c", "d", "e"}
		weigh := weights(map[replica.Replica]float64{
			"a": 0.3, "b": math.Inf(1), "c": 0.9, "d": 0, "e": 0.0001,
		})

		for i := 0; i < 200; i++ {
			Expect(slices.Collect(orderer.Order(replicas, weigh))).To(ConsistOf(replicas))
		}
	})

	It("should not weigh anything until iteration starts", func() {
		calls := 0
		seq := orderer.Order([]replica.Replica{"a", "b", "c"}, func(replica.Replica) float64 {
			calls++
			return 1
		})
		Expect(calls).To(BeZero())

		for range seq {
			break
		}
		Expect(calls).To(Equal(3))
	})

	It("should panic on a negative weight", func() {
		seq := orderer.Order([]replica.Replica{"a", "b"}, weights(map[replica.Replica]float64{"a": 1, "b": -0.5}))

		Expect(func() {
			for range seq {
			}
		}).To(PanicWith(MatchError(strategy.ErrNegativeWeight)))
	})

	It("should draw equal weights uniformly", func() {
		replicas := []replica.Replica{"a", "b", "c", "d", "e"}
		const trials = 100_000

		counts := firstDrawn(orderer, replicas, func(replica.Replica) float64 { return 0.7 }, trials)

		for _, r := range replicas {
			share := float64(counts[r]) / trials
			Expect(share).To(BeNumerically(">=", 0.18), string(r))
			Expect(share).To(BeNumerically("<=", 0.22), string(r))
		}
	})

	It("should favour higher weights linearly", func() {
		replicas := []replica.Replica{"w2", "w4", "w6", "w8", "w10"}
		weigh := weights(map[replica.Replica]float64{
			"w2": 0.2, "w4": 0.4, "w6": 0.6, "w8": 0.8, "w10": 1.0,
		})
		const trials = 100_000

		counts := firstDrawn(orderer, replicas, weigh, trials)

		share := func(r replica.Replica) float64 { return float64(counts[r]) / trials }

		Expect(share("w2")).To(BeNumerically("~", 0.2/3, 0.015))
		Expect(share("w4")).To(BeNumerically("~", 0.4/3, 0.015))
		Expect(share("w6")).To(BeNumerically("~", 0.6/3, 0.015))
		Expect(share("w8")).To(BeNumerically("~", 0.8/3, 0.015))
		Expect(share("w10")).To(BeNumerically(">=", 0.32))
		Expect(share("w10")).To(BeNumerically("<=", 0.35))

		for i := 1; i < len(replicas); i++ {
			Expect(counts[replicas[i]]).To(BeNumerically(">", counts[replicas[i-1]]))
		}
	})

	It("should emit every replica when weights span many magnitudes", func() {
		replicas := []replica.Replica{"a", "b", "c", "d"}
		weigh := weights(map[replica.Replica]float64{"a": 1e12, "b": 1e-3, "c": 3e-3, "d": 0.7})

		for i := 0; i < 2000; i++ {
			Expect(slices.Collect(orderer.Order(replicas, weigh))).To(ConsistOf(replicas))
		}
	})

	It("should stay correct past the pooled sampler size", func() {
		replicas := make([]replica.Replica, 0, 100)
		for i := 0; i < 100; i++ {
			replicas = append(replicas, replica.Replica(string(rune('A'+i%26))+string(rune('a'+i/26))))
		}

		order := slices.Collect(orderer.Order(replicas, func(replica.Replica) float64 { return 0.5 }))
		Expect(order).To(ConsistOf(replicas))
	})
})
