// Package scanning turns bill images into raw text.
//
// A Session owns one long-lived recognition Engine. The engine is created on
// the first ExtractText call, reused for every call after that, and released
// by Close. Engines are not reentrant, so a session runs one recognition at a
// time and queues the rest.
//
// Available engines:
//   - Vision: Google Cloud Vision document text detection
//   - Gemini: Google Gemini vision model asked for a verbatim transcription
//   - Ollama: a local vision model served by Ollama
//
// PDFTextLayer can wrap any engine to read PDFs that already carry text.
package scanning

import "context"

// Engine converts a single image or PDF into text
type Engine interface {
	// Recognize returns the text found in data
	Recognize(ctx context.Context, data []byte, contentType string) (string, error)
	// Close releases the engine's resources
	Close() error
}

// EngineFactory starts an Engine. Sessions call it lazily, at most once per
// successful initialization, with a context that ends when the session closes.
type EngineFactory func(ctx context.Context) (Engine, error)
