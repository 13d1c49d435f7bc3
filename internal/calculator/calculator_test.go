package calculator_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/calculator"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

type scale struct {
	factor  float64
	seen    []float64
	learned []replica.Outcome
}

func (s *scale) Modify(_ replica.Cluster, _ replica.Replica, w *float64) {
	s.seen = append(s.seen, *w)
	*w *= s.factor
}

func (s *scale) Learn(outcome replica.Outcome) {
	s.learned = append(s.learned, outcome)
}

type poison struct{}

func (poison) Modify(_ replica.Cluster, _ replica.Replica, w *float64) { *w = math.NaN() }
func (poison) Learn(replica.Outcome)                                  {}

var _ = Describe("Calculator", func() {
	cluster := replica.Cluster{Service: "orders", Environment: "prod"}
	settings := calculator.Settings{MinWeight: 0.1, MaxWeight: 2, InitialWeight: 1}

	DescribeTable("settings validation",
		func(s calculator.Settings, valid bool) {
			_, err := calculator.New(s)
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("valid", calculator.Settings{MinWeight: 0, MaxWeight: 1, InitialWeight: 1}, true),
		Entry("infinite maximum", calculator.Settings{MinWeight: 0, MaxWeight: math.Inf(1), InitialWeight: 1}, true),
		Entry("negative minimum", calculator.Settings{MinWeight: -1, MaxWeight: 1, InitialWeight: 0}, false),
		Entry("maximum below minimum", calculator.Settings{MinWeight: 1, MaxWeight: 0.5, InitialWeight: 1}, false),
		Entry("initial above maximum", calculator.Settings{MinWeight: 0, MaxWeight: 1, InitialWeight: 2}, false),
		Entry("initial below minimum", calculator.Settings{MinWeight: 0.5, MaxWeight: 1, InitialWeight: 0.2}, false),
	)

	It("should return the initial weight without modifiers", func() {
		calc, err := calculator.New(settings)
		Expect(err).NotTo(HaveOccurred())
		Expect(calc.Calculate(cluster, "a")).To(Equal(1.0))
	})

	It("should clamp after every stage", func() {
		first := &scale{factor: 10}
		second := &scale{factor: 0.5}
		calc, _ := calculator.New(settings, first, second)

		Expect(calc.Calculate(cluster, "a")).To(Equal(1.0))
		Expect(first.seen).To(Equal([]float64{1}))
		Expect(second.seen).To(Equal([]float64{2}))
	})

	It("should clamp to the minimum", func() {
		calc, _ := calculator.New(settings, &scale{factor: 0})
		Expect(calc.Calculate(cluster, "a")).To(Equal(0.1))
	})

	It("should turn NaN into the minimum", func() {
		calc, _ := calculator.New(settings, poison{})
		Expect(calc.Calculate(cluster, "a")).To(Equal(0.1))
	})

	It("should keep an infinite weight when the maximum allows it", func() {
		calc, _ := calculator.New(calculator.Settings{MinWeight: 0, MaxWeight: math.Inf(1), InitialWeight: 1}, &scale{factor: math.Inf(1)})
		Expect(math.IsInf(calc.Calculate(cluster, "a"), 1)).To(BeTrue())
	})

	It("should turn infinity times zero into the minimum", func() {
		calc, _ := calculator.New(
			calculator.Settings{MinWeight: 0, MaxWeight: math.Inf(1), InitialWeight: 1},
			&scale{factor: math.Inf(1)},
			&scale{factor: 0},
		)
		Expect(calc.Calculate(cluster, "a")).To(BeZero())
	})

	It("should fan outcomes out to every modifier", func() {
		first, second := &scale{factor: 1}, &scale{factor: 1}
		calc, _ := calculator.New(settings, first, second)

		outcome := replica.Outcome{Cluster: cluster, Replica: "a", Verdict: replica.Accept}
		calc.Learn(outcome)

		Expect(first.learned).To(ConsistOf(outcome))
		Expect(second.learned).To(ConsistOf(outcome))
	})
})
