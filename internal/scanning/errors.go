package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by a session that has been closed, both for
	// calls made afterwards and for calls that were waiting or in flight.
	ErrSessionClosed = errors.New("recognition session is closed")

	// ErrRecognitionFailed is returned when the engine could not read the image.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrEmptyText is returned when the engine succeeded but produced no text.
	ErrEmptyText = errors.New("no text recognized")

	// ErrEngineInit is returned when the recognition engine could not be started.
	ErrEngineInit = errors.New("recognition engine initialization failed")
)

// RecognitionError wraps engine failures with the operation that hit them.
type RecognitionError struct {
	// Op is the operation that failed (e.g., "initialize", "ExtractText").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("scanning: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("scanning: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// NewRecognitionError creates a new RecognitionError.
func NewRecognitionError(op string, err error, details string) *RecognitionError {
	return &RecognitionError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapRecognitionError wraps err as a RecognitionError unless it already is one
// or is ErrSessionClosed.
func WrapRecognitionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var recErr *RecognitionError
	if errors.As(err, &recErr) || errors.Is(err, ErrSessionClosed) {
		return err
	}

	if !errors.Is(err, ErrRecognitionFailed) && !errors.Is(err, ErrEmptyText) && !errors.Is(err, ErrEngineInit) {
		err = fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}
	return NewRecognitionError(op, err, details)
}

// IsRecognitionError reports whether err came from a recognition engine
func IsRecognitionError(err error) bool {
	var recErr *RecognitionError
	return errors.As(err, &recErr)
}
