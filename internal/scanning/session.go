package scanning

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/logger"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateBusy
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session owns a single recognition engine and serializes calls to it
type Session struct {
	factory EngineFactory
	log     zerolog.Logger

	// ctx lives as long as the session and is handed to the factory
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	engine   Engine
	starting *engineStart

	// gate holds one token while the engine is working
	gate      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
}

type recognition struct {
	text string
	err  error
}

// engineStart is one run of the factory; done is closed once engine or err is set
type engineStart struct {
	done   chan struct{}
	engine Engine
	err    error
}

// NewSession creates a session; no engine is started until the first call
func NewSession(factory EngineFactory) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		factory: factory,
		log:     logger.WithComponent("scanning"),
		ctx:     ctx,
		cancel:  cancel,
		gate:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ExtractText recognizes the text in img. Calls made while another
// recognition is running wait for it to finish.
func (s *Session) ExtractText(ctx context.Context, img intake.Image) (string, error) {
	const op = "ExtractText"

	if s.closed() {
		return "", ErrSessionClosed
	}

	engine, err := s.ensureEngine(ctx)
	if err != nil {
		return "", err
	}

	select {
	case s.gate <- struct{}{}:
	case <-s.done:
		return "", ErrSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if s.closed() {
		<-s.gate
		return "", ErrSessionClosed
	}
	s.state.CompareAndSwap(int32(StateReady), int32(StateBusy))

	start := time.Now()
	results := make(chan recognition, 1)
	go func() {
		// The token is returned only once the engine is idle again, even if
		// the caller has already given up waiting.
		text, err := engine.Recognize(ctx, img.Data, img.ContentType)
		s.state.CompareAndSwap(int32(StateBusy), int32(StateReady))
		<-s.gate
		results <- recognition{text: text, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			if s.closed() {
				return "", ErrSessionClosed
			}
			return "", WrapRecognitionError(op, r.err, img.ContentType)
		}
		if strings.TrimSpace(r.text) == "" {
			return "", NewRecognitionError(op, ErrEmptyText, img.ContentType)
		}
		s.log.Debug().
			Dur("duration", time.Since(start)).
			Int("text_length", len(r.text)).
			Msg("Recognition finished")
		return r.text, nil
	case <-s.done:
		return "", ErrSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ensureEngine starts the engine on first use. Concurrent callers share a
// single factory run and stop waiting when the session closes or their ctx
// ends. A failed start is forgotten so the next call tries again.
func (s *Session) ensureEngine(ctx context.Context) (Engine, error) {
	s.mu.Lock()
	if s.closed() {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.engine != nil {
		engine := s.engine
		s.mu.Unlock()
		return engine, nil
	}
	attempt := s.starting
	if attempt == nil {
		attempt = &engineStart{done: make(chan struct{})}
		s.starting = attempt
		go s.startEngine(attempt)
	}
	s.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.engine, attempt.err
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) startEngine(attempt *engineStart) {
	start := time.Now()
	engine, err := s.factory(s.ctx)

	var stale Engine
	s.mu.Lock()
	s.starting = nil
	switch {
	case s.closed():
		// Close already ran and will not see this engine
		if err == nil {
			stale = engine
		}
		attempt.err = ErrSessionClosed
	case err != nil:
		s.log.Error().Err(err).Msg("Failed to start recognition engine")
		attempt.err = WrapRecognitionError("initialize", ErrEngineInit, err.Error())
	default:
		s.engine = engine
		attempt.engine = engine
		s.state.CompareAndSwap(int32(StateUninitialized), int32(StateReady))
		s.log.Info().Dur("duration", time.Since(start)).Msg("Recognition engine started")
	}
	s.mu.Unlock()
	close(attempt.done)

	if stale != nil {
		if err := stale.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close recognition engine")
		}
	}
}

// Close terminates the session and releases the engine. Waiting and in-flight
// calls fail with ErrSessionClosed, including calls still waiting for the
// engine to start. Close is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateTerminated))
		close(s.done)
		s.cancel()

		s.mu.Lock()
		engine := s.engine
		s.mu.Unlock()

		if engine != nil {
			err = engine.Close()
		}
		s.log.Debug().Bool("engine_started", engine != nil).Msg("Recognition session closed")
	})
	return err
}
