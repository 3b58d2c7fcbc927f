// Package pipeline runs a bill document through intake, text recognition and
// extraction. A Pipeline owns one recognition session; callers must Close it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/zombor/billscan/internal/extraction"
	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/logger"
	"github.com/zombor/billscan/internal/metrics"
	"github.com/zombor/billscan/internal/scanning"
)

// Pipeline is safe for concurrent use. Recognition calls are serialized by
// the session; intake and extraction run concurrently.
type Pipeline struct {
	cfg       intake.ProcessingConfig
	session   *scanning.Session
	extractor *extraction.Extractor
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Pipeline)

func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithMetrics records document outcomes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock sets the clock used for dates that cannot be read
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New builds a pipeline. The recognition engine is not started until the
// first document reaches it.
func New(cfg intake.ProcessingConfig, factory scanning.EngineFactory, opts ...Option) *Pipeline {
	cfg.AcceptedTypes = append([]string(nil), cfg.AcceptedTypes...)

	p := &Pipeline{
		cfg:     cfg,
		session: scanning.NewSession(factory),
		log:     logger.WithComponent("pipeline"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = extraction.NewExtractor(p.now)

	return p
}

// Process extracts a Result from doc. Validation failures are returned
// before any recognition is attempted.
func (p *Pipeline) Process(ctx context.Context, doc intake.RawDocument) (*extraction.Result, error) {
	p.startDocument()

	img, err := intake.Normalize(doc, p.cfg)
	if err != nil {
		p.log.Warn().Err(err).Msg("Document rejected")
		p.finishDocument(metrics.StatusInvalid)
		return nil, err
	}

	start := time.Now()
	text, err := p.session.ExtractText(ctx, img)
	if p.metrics != nil {
		p.metrics.ObserveRecognition(time.Since(start))
	}
	if err != nil {
		status := statusFor(err)
		p.log.Error().Err(err).Str("status", status).Msg("Text recognition failed")
		p.finishDocument(status)
		return nil, err
	}

	result := p.extractor.Extract(text)
	found := result.FoundFields()
	fallback := len(result.LineItems) == 1 && result.LineItems[0].Synthesized

	if p.metrics != nil {
		p.metrics.RecordFields(found)
		if fallback {
			p.metrics.RecordLineItemFallback()
		}
	}
	p.finishDocument(metrics.StatusSuccess)

	p.log.Info().
		Strs("fields", found).
		Int("line_items", len(result.LineItems)).
		Bool("line_item_fallback", fallback).
		Bool("date_inferred", result.DateInferred).
		Dur("recognition", time.Since(start)).
		Msg("Bill extracted")

	return &result, nil
}

// State reports the recognition session state
func (p *Pipeline) State() scanning.State {
	return p.session.State()
}

// Close releases the recognition engine. In-flight and later Process calls
// fail with scanning.ErrSessionClosed.
func (p *Pipeline) Close() error {
	return p.session.Close()
}

func (p *Pipeline) startDocument() {
	if p.metrics != nil {
		p.metrics.StartDocument()
	}
}

func (p *Pipeline) finishDocument(status string) {
	if p.metrics != nil {
		p.metrics.FinishDocument(status)
	}
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, scanning.ErrSessionClosed):
		return metrics.StatusClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.StatusCanceled
	default:
		return metrics.StatusFailed
	}
}
