package bill_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/metrics"
	"github.com/zombor/billscan/internal/pipeline"
	"github.com/zombor/billscan/internal/scanning"
)

// stubEngine returns a fixed transcription for every document
type stubEngine struct {
	text string
}

func (e *stubEngine) Recognize(ctx context.Context, data []byte, contentType string) (string, error) {
	return e.text, nil
}

func (e *stubEngine) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *bill.BoltDB
		store    *bill.LocalStorage
		pipe     *pipeline.Pipeline
		server   *bill.Server
		ghServer *ghttp.Server
		err      error
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		db, err = bill.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = bill.NewLocalStorage(filepath.Join(tempDir, "bills"))
		Expect(err).NotTo(HaveOccurred())

		engine := &stubEngine{text: strings.Join([]string{
			"TAX INVOICE",
			"Invoice No: 2024/118",
			"Date: 05/03/2024",
			"Bill To: Asha Traders",
			"GSTIN: 27AAPFU0939F1ZV",
			"Cement Bag 2 450.00 900.00",
			"Subtotal 900.00",
			"GST 162.00",
			"Grand Total 1062.00",
		}, "\n")}
		factory := func(ctx context.Context) (scanning.Engine, error) {
			return engine, nil
		}

		m := metrics.New()
		pipe = pipeline.New(intake.DefaultProcessingConfig(), factory, pipeline.WithMetrics(m))
		service := bill.NewService(db, pipe, store)
		server = bill.NewServer(service, bill.BasicAuth{}, m)

		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		ghServer.Close()
		pipe.Close()
		db.Close()
	})

	It("uploads a bill, extracts it, and accepts corrections", func() {
		ghServer.AppendHandlers(
			server.ServeHTTP, // upload
			server.ServeHTTP, // correct
			server.ServeHTTP, // fetch file
		)

		// --- Step 1: upload ---
		fileContent := []byte("%PDF-1.4 ... fake pdf content ...")
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "march bill.pdf")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(fileContent)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/bills", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created bill.Bill
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
		Expect(*created.Result.BillNumber).To(Equal("2024/118"))
		Expect(*created.Result.BillDate).To(Equal("2024-03-05"))
		Expect(created.Result.TotalAmount.String()).To(Equal("1062"))
		Expect(created.Result.GSTAmount.String()).To(Equal("162"))
		Expect(created.Result.Customer.TaxID).NotTo(BeNil())
		Expect(*created.Result.Customer.TaxID).To(Equal("27AAPFU0939F1ZV"))
		Expect(created.Result.LineItems).To(HaveLen(1))
		Expect(created.Result.LineItems[0].ProductName).To(Equal("Cement Bag"))
		Expect(created.ContentType).To(Equal("application/pdf"))

		saved, err := db.GetBill(created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Reviewed).To(BeFalse())

		// --- Step 2: correct the bill number ---
		req, err := http.NewRequest(http.MethodPatch, ghServer.URL()+"/api/bills/"+created.ID,
			strings.NewReader(`{"bill_number":"2024/119"}`))
		Expect(err).NotTo(HaveOccurred())
		patchResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer patchResp.Body.Close()
		Expect(patchResp.StatusCode).To(Equal(http.StatusOK))

		saved, err = db.GetBill(created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*saved.Result.BillNumber).To(Equal("2024/119"))
		Expect(saved.Reviewed).To(BeTrue())
		Expect(saved.UpdatedAt).To(BeTemporally(">=", saved.CreatedAt))
		Expect(saved.CreatedAt).To(BeTemporally("~", time.Now(), time.Minute))

		// --- Step 3: the stored upload is served back ---
		fileResp, err := http.Get(ghServer.URL() + "/api/bills/" + created.ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		defer fileResp.Body.Close()
		data, err := io.ReadAll(fileResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(fileContent))
		Expect(fileResp.Header.Get("Content-Type")).To(Equal("application/pdf"))
	})
})
