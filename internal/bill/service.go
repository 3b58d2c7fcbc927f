package bill

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/zombor/billscan/internal/extraction"
	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/logger"
	"github.com/zombor/billscan/internal/scanning"
)

// Processor turns an uploaded document into extracted fields
type Processor interface {
	Process(ctx context.Context, doc intake.RawDocument) (*extraction.Result, error)
}

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// BreakerSettings controls when the recognizer is taken out of rotation
type BreakerSettings struct {
	// MaxFailures is the number of consecutive recognition failures that open the breaker
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before a trial request
	Cooldown time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, Cooldown: 30 * time.Second}
}

// Service handles bill operations
type Service struct {
	db          DB
	processor   Processor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	breaker     *gobreaker.CircuitBreaker[*extraction.Result]
	log         zerolog.Logger
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, processor Processor, storage Storage) *Service {
	return NewServiceWithDeps(db, processor, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, processor Processor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	s := &Service{
		db:          db,
		processor:   processor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		log:         logger.WithComponent("bill"),
	}
	s.SetBreaker(DefaultBreakerSettings())
	return s
}

// SetBreaker replaces the circuit breaker guarding recognition
func (s *Service) SetBreaker(settings BreakerSettings) {
	s.breaker = gobreaker.NewCircuitBreaker[*extraction.Result](gobreaker.Settings{
		Name:        "recognition",
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// A bad upload or a caller hanging up says nothing about the recognizer.
		IsExcluded: func(err error) bool {
			return err != nil && !scanning.IsRecognitionError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phones produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = strings.TrimSpace(base[:maxLen])
	}
	if base == "" {
		base = "bill"
	}

	return base + ext
}

// ScanBill stores an uploaded bill, extracts its fields, and saves the record
func (s *Service) ScanBill(ctx context.Context, filename string, data []byte, contentType string) (*Bill, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	contentType = intake.NormalizeContentType(contentType)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	result, err := s.breaker.Execute(func() (*extraction.Result, error) {
		return s.processor.Process(ctx, intake.RawDocument{Data: data, ContentType: contentType})
	})
	if err != nil {
		s.log.Error().
			Err(err).
			Str("filename", filename).
			Str("content_type", contentType).
			Int("file_size", len(data)).
			Msg("Failed to scan bill")
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			s.log.Warn().Err(delErr).Str("filename", savedPath).Msg("Failed to delete file")
		}
		return nil, fmt.Errorf("scanning bill: %w", err)
	}

	bill := &Bill{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Result:      *result,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveBill(bill); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			s.log.Warn().Err(delErr).Str("filename", savedPath).Msg("Failed to delete file")
		}
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	s.log.Info().Str("id", id).Str("filename", filename).Msg("Bill scanned")
	return bill, nil
}

// UpdateBill applies manual corrections to a bill
func (s *Service) UpdateBill(id string, correction Correction) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}

	if err := bill.Apply(correction, s.timeSource.Now()); err != nil {
		return nil, err
	}

	if err := s.db.SaveBill(bill); err != nil {
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}
	return bill, nil
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns all bills
func (s *Service) ListBills() ([]*Bill, error) {
	bills, err := s.db.ListBills()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	if bills == nil {
		bills = []*Bill{}
	}
	return bills, nil
}

// DeleteBill removes a bill and its file
func (s *Service) DeleteBill(id string) error {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if err := s.storage.Delete(bill.Filename); err != nil {
		// The record still goes
		s.log.Warn().Err(err).Str("filename", bill.Filename).Msg("Failed to delete file")
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// GetBillFile retrieves the uploaded file for a bill
func (s *Service) GetBillFile(id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(bill.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, bill.ContentType, nil
}

// BreakerState reports the recognition circuit breaker state
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// IsUnavailable reports whether err means recognition is temporarily refused
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, scanning.ErrSessionClosed)
}
