package bill

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "bills"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			data      []byte
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "test.jpg"
			data = []byte("test file content")
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, data)
		})

		When("saving succeeds", func() {
			It("should return the name it was saved under", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, "bills", filename)).To(BeAnExistingFile())
			})

			It("leaves no temporary files behind", func() {
				entries, readErr := os.ReadDir(filepath.Join(tmpDir, "bills"))
				Expect(readErr).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].Name()).To(Equal(filename))
			})
		})

		When("the name escapes the storage directory", func() {
			BeforeEach(func() {
				filename = "../escape.jpg"
			})

			It("refuses it", func() {
				Expect(err).To(HaveOccurred())
				Expect(filepath.Join(tmpDir, "escape.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("file exists", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(filepath.Join(tmpDir, "bills", "a.pdf"), []byte("%PDF"), 0644)).To(Succeed())
			})

			It("returns its contents", func() {
				data, err := storage.Get("a.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("%PDF")))
			})
		})

		When("file does not exist", func() {
			It("returns ErrFileNotFound", func() {
				_, err := storage.Get("missing.pdf")
				Expect(errors.Is(err, ErrFileNotFound)).To(BeTrue())
			})
		})
	})

	Describe("Delete", func() {
		When("file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("doomed.png", []byte("png"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("removes it", func() {
				Expect(storage.Delete("doomed.png")).To(Succeed())
				Expect(filepath.Join(tmpDir, "bills", "doomed.png")).NotTo(BeAnExistingFile())
			})
		})

		When("file does not exist", func() {
			It("returns ErrFileNotFound", func() {
				Expect(storage.Delete("missing.png")).To(MatchError(ErrFileNotFound))
			})
		})
	})
})
