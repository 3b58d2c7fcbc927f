package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("cleanTranscription", func() {
	It("leaves plain text alone apart from surrounding space", func() {
		Expect(cleanTranscription("  Bill No 7\nTotal 10  ")).To(Equal("Bill No 7\nTotal 10"))
	})

	It("removes a bare code fence", func() {
		Expect(cleanTranscription("```\nBill No 7\nTotal 10\n```")).To(Equal("Bill No 7\nTotal 10"))
	})

	It("removes a fence with an info string", func() {
		Expect(cleanTranscription("```text\nGrand Total 500\n```")).To(Equal("Grand Total 500"))
	})

	It("keeps content on the opening fence line", func() {
		Expect(cleanTranscription("```Bill No 7 dated today\nTotal 10```")).To(Equal("Bill No 7 dated today\nTotal 10"))
	})
})
