package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		ollama  *Ollama
		request ollamaChatRequest
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama = NewOllama(server.URL()+"/", "test-model")
		request = ollamaChatRequest{}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = ollama.Recognize(context.Background(), tinyPNG(), "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						body, readErr := io.ReadAll(r.Body)
						Expect(readErr).NotTo(HaveOccurred())
						Expect(json.Unmarshal(body, &request)).To(Succeed())
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
						Message: ollamaMessage{Role: "assistant", Content: "```\nInvoice No 99\nTotal 12.50\n```"},
						Done:    true,
					}),
				),
			)
		})

		It("returns the cleaned transcription", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Invoice No 99\nTotal 12.50"))
		})

		It("sends the image with the user message", func() {
			Expect(request.Model).To(Equal("test-model"))
			Expect(request.Stream).To(BeFalse())
			Expect(request.Messages).To(HaveLen(2))
			Expect(request.Messages[1].Images).To(HaveLen(1))
			Expect(request.Messages[1].Content).To(Equal(transcriptionPrompt))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the status and body", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("500"))
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})
})
