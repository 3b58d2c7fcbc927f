package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PDFTextLayer", func() {
	var (
		next  *mockEngine
		layer *PDFTextLayer
	)

	BeforeEach(func() {
		next = &mockEngine{text: "from engine"}
		layer = NewPDFTextLayer(next)
	})

	It("delegates images to the wrapped engine", func() {
		text, err := layer.Recognize(context.Background(), []byte("jpeg"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("from engine"))
		Expect(next.calls.Load()).To(Equal(int32(1)))
	})

	It("delegates PDFs it cannot read", func() {
		text, err := layer.Recognize(context.Background(), []byte("%PDF-1.4 truncated"), "application/pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("from engine"))
	})

	When("the PDF has a text layer", func() {
		var doc []byte

		BeforeEach(func() {
			doc = textPDF(`BT /F1 12 Tf 72 700 Td (Invoice No. 12345) Tj ET
BT /F1 12 Tf 72 680 Td (Widget 2 50.00 100.00) Tj ET
BT /F1 12 Tf 72 660 Td (Total 100.00) Tj ET`)
		})

		It("returns its text one printed line per line", func() {
			text, err := layer.Recognize(context.Background(), doc, "application/pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Invoice No. 12345\nWidget 2 50.00 100.00\nTotal 100.00"))
		})

		It("does not call the wrapped engine", func() {
			_, err := layer.Recognize(context.Background(), doc, "application/pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(next.calls.Load()).To(Equal(int32(0)))
		})
	})

	It("orders lines top to bottom whatever order they were drawn in", func() {
		text, err := pdfText(textPDF(`BT /F1 12 Tf 72 660 Td (Total 100.00) Tj ET
BT /F1 12 Tf 72 700 Td (Invoice No. 12345) Tj ET`))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Invoice No. 12345\nTotal 100.00"))
	})

	It("separates runs drawn apart on the same line", func() {
		text, err := pdfText(textPDF(`BT /F1 12 Tf 72 700 Td (Widget) Tj ET
BT /F1 12 Tf 300 700 Td (2) Tj ET
BT /F1 12 Tf 400 701 Td (100.00) Tj ET`))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Widget 2 100.00"))
	})

	It("delegates PDFs whose pages carry no text", func() {
		text, err := layer.Recognize(context.Background(), textPDF("0 0 m 10 10 l"), "application/pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("from engine"))
	})

	It("closes the wrapped engine", func() {
		Expect(layer.Close()).To(Succeed())
		Expect(next.closeCalls.Load()).To(Equal(int32(1)))
	})

	Describe("TextLayerFactory", func() {
		It("wraps the engine from the inner factory", func() {
			factory := TextLayerFactory(func(ctx context.Context) (Engine, error) {
				return next, nil
			})
			engine, err := factory(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(engine).To(BeAssignableToTypeOf(&PDFTextLayer{}))
		})

		It("returns the inner factory error", func() {
			factory := TextLayerFactory(func(ctx context.Context) (Engine, error) {
				return nil, errors.New("boom")
			})
			_, err := factory(context.Background())
			Expect(err).To(MatchError("boom"))
		})
	})
})

// textPDF builds a one-page PDF around the given content stream
func textPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
