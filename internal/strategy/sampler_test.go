package strategy

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("sampler", func() {
	var s *sampler

	BeforeEach(func() {
		s = &sampler{}
		s.add("a", 0.1)
		s.add("b", 0.2)
	})

	It("should pick the entry whose range holds the target", func() {
		Expect(s.drawAt(0.05)).To(BeEquivalentTo("a"))
		Expect(s.remaining).To(Equal(1))
		Expect(s.sum).To(BeNumerically("~", 0.2, 1e-12))
	})

	It("should give a rounding gap to the last present entry and resync the sum", func() {
		s.sum += 1e-12

		Expect(s.drawAt(0.3 + 1e-12)).To(BeEquivalentTo("b"))
		Expect(s.sum).To(BeNumerically("~", 0.1, 1e-15))
		Expect(s.drawAt(s.sum)).To(BeEquivalentTo("a"))
	})

	It("should panic when the target is far above every present weight", func() {
		Expect(func() { s.drawAt(0.5) }).To(PanicWith(MatchError(ErrSamplingExhausted)))
	})

	It("should panic when nothing is left to draw", func() {
		s.drawAt(0.05)
		s.drawAt(0.05)

		Expect(func() { s.drawAt(0) }).To(PanicWith(MatchError(ErrSamplingExhausted)))
	})
})
