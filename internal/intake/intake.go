// Package intake validates uploaded bill documents and shrinks raster images
// before they are handed to a text recognizer.
package intake

import (
	"fmt"
	"mime"
	"strings"
)

// RawDocument is an uploaded file as received from the caller
type RawDocument struct {
	Data        []byte
	ContentType string
	Size        int64 // declared size; the larger of this and len(Data) is enforced
}

// Image is a document ready for recognition
type Image struct {
	Data        []byte
	ContentType string
}

// ProcessingConfig controls validation and downscaling. It is read-only once
// a pipeline has been built with it.
type ProcessingConfig struct {
	MaxBytes      int64
	AcceptedTypes []string
	MaxWidth      int
	MaxHeight     int
	Quality       float64 // 0..1 JPEG recompression factor
}

// DefaultProcessingConfig returns limits suitable for phone photos of bills
func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		MaxBytes: 10 << 20,
		AcceptedTypes: []string{
			"image/jpeg",
			"image/png",
			"image/gif",
			"image/webp",
			"image/heic",
			"image/heif",
			"application/pdf",
		},
		MaxWidth:  1600,
		MaxHeight: 1600,
		Quality:   0.8,
	}
}

// Accepts reports whether the media type is in the accepted set
func (c ProcessingConfig) Accepts(contentType string) bool {
	mt := NormalizeContentType(contentType)
	for _, accepted := range c.AcceptedTypes {
		if NormalizeContentType(accepted) == mt {
			return true
		}
	}
	return false
}

// jpegQuality maps the 0..1 quality factor onto the 1..100 JPEG scale
func (c ProcessingConfig) jpegQuality() int {
	q := int(c.Quality*100 + 0.5)
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// ValidationError reports a document rejected before recognition
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NormalizeContentType lowercases a media type and drops any parameters
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// IsHEIC reports whether the data or its declared media type is HEIC/HEIF.
// Phones frequently upload HEIC with a generic or jpeg content type.
func IsHEIC(data []byte, contentType string) bool {
	mt := NormalizeContentType(contentType)
	if mt == "image/heic" || mt == "image/heif" {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
