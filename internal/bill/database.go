package bill

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	billsBucket = []byte("bills")
	// created time + ID -> ID, so listing walks bills in upload order
	createdBucket = []byte("bills_by_created")
)

// ErrNotFound is returned when no bill has the requested ID
var ErrNotFound = errors.New("bill not found")

// DB defines the interface for database operations
type DB interface {
	// SaveBill inserts or replaces a bill
	SaveBill(bill *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ListBills returns all bills, newest first
	ListBills() ([]*Bill, error)

	// DeleteBill removes a bill from the database
	DeleteBill(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB stores bills as JSON documents in a bbolt file
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database at path, creating it if needed. The creation
// index is rebuilt when it is missing.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bills, err := tx.CreateBucketIfNotExists(billsBucket)
		if err != nil {
			return err
		}
		index, err := tx.CreateBucketIfNotExists(createdBucket)
		if err != nil {
			return err
		}
		if k, _ := index.Cursor().First(); k != nil {
			return nil
		}
		return bills.ForEach(func(_, v []byte) error {
			bill, err := decodeBill(v)
			if err != nil {
				return err
			}
			return index.Put(createdKey(bill), []byte(bill.ID))
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func createdKey(bill *Bill) []byte {
	key := make([]byte, 8+len(bill.ID))
	binary.BigEndian.PutUint64(key, uint64(bill.CreatedAt.UnixNano()))
	copy(key[8:], bill.ID)
	return key
}

func decodeBill(data []byte) (*Bill, error) {
	var bill Bill
	if err := json.Unmarshal(data, &bill); err != nil {
		return nil, fmt.Errorf("unmarshaling bill: %w", err)
	}
	return &bill, nil
}

// SaveBill inserts the bill or replaces the one with the same ID
func (b *BoltDB) SaveBill(bill *Bill) error {
	data, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("marshaling bill: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bills := tx.Bucket(billsBucket)
		index := tx.Bucket(createdBucket)

		if old := bills.Get([]byte(bill.ID)); old != nil {
			previous, err := decodeBill(old)
			if err != nil {
				return err
			}
			if err := index.Delete(createdKey(previous)); err != nil {
				return err
			}
		}
		if err := bills.Put([]byte(bill.ID), data); err != nil {
			return err
		}
		return index.Put(createdKey(bill), []byte(bill.ID))
	})
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var bill *Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(billsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var err error
		bill, err = decodeBill(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ListBills walks the creation index backwards
func (b *BoltDB) ListBills() ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		byID := tx.Bucket(billsBucket)
		c := tx.Bucket(createdBucket).Cursor()
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			data := byID.Get(id)
			if data == nil {
				continue
			}
			bill, err := decodeBill(data)
			if err != nil {
				return err
			}
			bills = append(bills, bill)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// DeleteBill removes a bill and its index entry
func (b *BoltDB) DeleteBill(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bills := tx.Bucket(billsBucket)
		data := bills.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		bill, err := decodeBill(data)
		if err != nil {
			return err
		}
		if err := tx.Bucket(createdBucket).Delete(createdKey(bill)); err != nil {
			return err
		}
		return bills.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
