package statistic_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/adaptive-balancer/internal/statistic"
)

var _ = Describe("Smoothing", func() {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	DescribeTable("SmoothValue",
		func(elapsed time.Duration, constant time.Duration, expected float64) {
			got := statistic.SmoothValue(10, 0, now.Add(elapsed), now, constant)
			Expect(got).To(BeNumerically("~", expected, 1e-6))
		},
		Entry("no elapsed time keeps the current value", time.Duration(0), time.Second, 10.0),
		Entry("one time constant", time.Second, time.Second, 10*(1-0.36787944117)),
		Entry("very long elapsed time converges to current", 1000*time.Hour, time.Second, 10.0),
		Entry("clock going backwards keeps the current value", -time.Second, time.Second, 10.0),
	)

	It("should return current regardless of the constant when timestamps match", func() {
		for _, c := range []time.Duration{time.Millisecond, time.Minute, 24 * time.Hour} {
			Expect(statistic.SmoothValue(3.5, 99, now, now, c)).To(Equal(3.5))
		}
	})

	Describe("AggregatedStatistic.Smooth", func() {
		current := statistic.AggregatedStatistic{
			TotalCount:    10,
			ErrorFraction: 0.2,
			Mean:          100,
			StdDev:        10,
			Timestamp:     now.Add(time.Second),
		}

		It("should return itself without a previous statistic", func() {
			Expect(current.Smooth(nil, time.Second)).To(Equal(current))
		})

		It("should blend mean, stddev and error fraction", func() {
			previous := statistic.AggregatedStatistic{
				TotalCount:    50,
				ErrorFraction: 0,
				Mean:          200,
				StdDev:        20,
				Timestamp:     now,
			}

			smoothed := current.Smooth(&previous, time.Second)

			Expect(smoothed.Mean).To(BeNumerically(">", 100))
			Expect(smoothed.Mean).To(BeNumerically("<", 200))
			Expect(smoothed.StdDev).To(BeNumerically(">", 10))
			Expect(smoothed.ErrorFraction).To(BeNumerically("<", 0.2))
			Expect(smoothed.TotalCount).To(Equal(int64(10)))
			Expect(smoothed.Timestamp).To(Equal(current.Timestamp))
		})
	})
})
