package bill

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"

	"github.com/zombor/billscan/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newBill := func(id string, created time.Time) *Bill {
		number := "INV-" + id
		total := decimal.RequireFromString("1180.00")
		return &Bill{
			ID:          id,
			Filename:    id + "_bill.jpg",
			ContentType: "image/jpeg",
			Result: extraction.Result{
				BillNumber:  &number,
				TotalAmount: &total,
				LineItems: []extraction.LineItem{{
					ID:          "item-1",
					ProductName: "Cement",
					Quantity:    2,
					UnitPrice:   decimal.RequireFromString("500"),
					TotalPrice:  decimal.RequireFromString("1000"),
				}},
			},
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	Describe("SaveBill", func() {
		var (
			bill *Bill
			err  error
		)

		BeforeEach(func() {
			bill = newBill("test-id", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveBill(bill)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round-trip the extracted fields", func() {
				saved, getErr := db.GetBill("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(*saved.Result.BillNumber).To(Equal("INV-test-id"))
				Expect(saved.Result.TotalAmount.Equal(decimal.RequireFromString("1180"))).To(BeTrue())
				Expect(saved.Result.LineItems).To(HaveLen(1))
				Expect(saved.Result.LineItems[0].TotalPrice.String()).To(Equal("1000"))
			})
		})

		When("the bill already exists", func() {
			It("replaces it", func() {
				bill.Reviewed = true
				Expect(db.SaveBill(bill)).To(Succeed())
				saved, getErr := db.GetBill("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Reviewed).To(BeTrue())
			})
		})
	})

	Describe("GetBill", func() {
		When("bill does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetBill("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListBills", func() {
		When("no bills exist", func() {
			It("returns an empty, non-nil slice", func() {
				bills, err := db.ListBills()
				Expect(err).NotTo(HaveOccurred())
				Expect(bills).NotTo(BeNil())
				Expect(bills).To(BeEmpty())
			})
		})

		When("bills exist", func() {
			BeforeEach(func() {
				Expect(db.SaveBill(newBill("a", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveBill(newBill("c", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveBill(newBill("b", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("lists a replaced bill once, at its new position", func() {
				moved := newBill("a", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
				Expect(db.SaveBill(moved)).To(Succeed())

				bills, err := db.ListBills()
				Expect(err).NotTo(HaveOccurred())
				Expect(bills).To(HaveLen(3))
				Expect(bills[0].ID).To(Equal("a"))
			})

			It("drops deleted bills from the listing", func() {
				Expect(db.DeleteBill("b")).To(Succeed())

				bills, err := db.ListBills()
				Expect(err).NotTo(HaveOccurred())
				Expect(bills).To(HaveLen(2))
			})

			It("rebuilds a missing creation index on open", func() {
				Expect(db.db.Update(func(tx *bbolt.Tx) error {
					return tx.DeleteBucket(createdBucket)
				})).To(Succeed())
				Expect(db.Close()).To(Succeed())

				reopened, err := NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())
				db = reopened

				bills, err := db.ListBills()
				Expect(err).NotTo(HaveOccurred())
				ids := []string{}
				for _, b := range bills {
					ids = append(ids, b.ID)
				}
				Expect(ids).To(Equal([]string{"c", "b", "a"}))
			})

			It("returns them newest first", func() {
				bills, err := db.ListBills()
				Expect(err).NotTo(HaveOccurred())
				ids := []string{}
				for _, b := range bills {
					ids = append(ids, b.ID)
				}
				Expect(ids).To(Equal([]string{"c", "b", "a"}))
			})
		})
	})

	Describe("DeleteBill", func() {
		When("bill exists", func() {
			BeforeEach(func() {
				Expect(db.SaveBill(newBill("gone", time.Now()))).To(Succeed())
			})

			It("removes it", func() {
				Expect(db.DeleteBill("gone")).To(Succeed())
				_, err := db.GetBill("gone")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("bill does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(db.DeleteBill("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("reopening", func() {
		It("keeps saved bills", func() {
			Expect(db.SaveBill(newBill("kept", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			reopened, err := NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			db = reopened

			saved, err := db.GetBill("kept")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Filename).To(Equal("kept_bill.jpg"))
		})
	})
})
