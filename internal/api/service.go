// Package api serves the question-answering pipeline over HTTP and owns the
// initialization state machine shared by every transport.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/index"
	"github.com/bull/got-explorer/internal/rag"
	"github.com/bull/got-explorer/internal/respond"
)

// State is the lifecycle of the retrieval pipeline.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reply statuses.
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusInitializing = "initializing"
	StatusUnavailable  = "unavailable"
)

// Reply is the body of every /ask response.
type Reply struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

// Stats describes a built pipeline.
type Stats struct {
	Chunks   int    `json:"chunks"`
	Fallback bool   `json:"fallback"`
	Reused   bool   `json:"reused"`
	Embedder string `json:"embedder"`
	Backend  string `json:"backend"`
}

// Initializer constructs the engine. It runs at most once per Service.
type Initializer func(ctx context.Context) (*rag.Engine, Stats, error)

// Status is a snapshot of the service.
type Status struct {
	State State `json:"state"`
	Stats
}

// Service holds the process-wide pipeline behind an explicit state machine:
// UNINITIALIZED -> INITIALIZING -> READY or DEGRADED. Initialization is
// attempted once and never blocks a request.
type Service struct {
	state      atomic.Int32
	initialize Initializer
	ctx        context.Context
	logger     zerolog.Logger

	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	engine *rag.Engine
	stats  Stats
}

// NewService creates a service in the UNINITIALIZED state. ctx bounds the
// background initialization.
func NewService(ctx context.Context, initialize Initializer, logger zerolog.Logger) *Service {
	return &Service{
		initialize: initialize,
		ctx:        ctx,
		logger:     logger.With().Str("component", "service").Logger(),
		done:       make(chan struct{}),
	}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Start begins initialization in the background. Only the first call has
// an effect; it reports whether this call started it.
func (s *Service) Start() bool {
	started := false
	s.once.Do(func() {
		started = true
		s.state.Store(int32(StateInitializing))
		s.logger.Info().Msg("Initializing retrieval pipeline")
		go s.run()
	})
	return started
}

func (s *Service) run() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprint(r)).Msg("Initialization panicked")
			s.state.Store(int32(StateDegraded))
		}
	}()

	engine, stats, err := s.initialize(s.ctx)
	if err == nil && engine == nil {
		err = errors.New("initializer returned no engine")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Initialization failed, serving degraded")
		s.state.Store(int32(StateDegraded))
		return
	}

	s.mu.Lock()
	s.engine = engine
	s.stats = stats
	s.mu.Unlock()
	s.state.Store(int32(StateReady))

	s.logger.Info().
		Int("chunks", stats.Chunks).
		Str("embedder", stats.Embedder).
		Str("backend", stats.Backend).
		Bool("fallback", stats.Fallback).
		Bool("reused", stats.Reused).
		Msg("Retrieval pipeline ready")
}

// Wait blocks until initialization has finished or ctx ends. It returns
// immediately with an error if initialization was never started.
func (s *Service) Wait(ctx context.Context) error {
	if s.State() == StateUninitialized {
		return errors.New("initialization not started")
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{State: s.State(), Stats: s.stats}
}

func (s *Service) readyEngine() *rag.Engine {
	if s.State() != StateReady {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Ask answers a question. Every outcome is a Reply; recoverable failures
// never surface as errors.
func (s *Service) Ask(ctx context.Context, sessionID, text string) Reply {
	if strings.TrimSpace(text) == "" {
		return Reply{Response: respond.EmptyQuestionMessage, Status: StatusSuccess}
	}

	switch s.State() {
	case StateUninitialized:
		s.Start()
		return Reply{Response: respond.InitializingMessage(text), Status: StatusInitializing}
	case StateInitializing:
		return Reply{Response: respond.InitializingMessage(text), Status: StatusInitializing}
	case StateDegraded:
		return Reply{Response: respond.UnavailableMessage, Status: StatusUnavailable}
	}

	engine := s.readyEngine()
	res, err := engine.Ask(ctx, sessionID, text)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			return Reply{Response: respond.EmptyQuestionMessage, Status: StatusSuccess}
		}
		s.logger.Error().Err(err).Str("session", sessionID).Msg("Question failed")
		return Reply{Response: respond.ErrorMessage, Status: StatusError}
	}
	return Reply{Response: res.Answer, Status: StatusSuccess}
}

// Search returns raw passages. It fails with rag.ErrIndexUnavailable unless
// the service is ready.
func (s *Service) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	engine := s.readyEngine()
	if engine == nil {
		if s.State() == StateUninitialized {
			s.Start()
		}
		return nil, fmt.Errorf("%w: service is %s", rag.ErrIndexUnavailable, s.State())
	}
	return engine.Retriever().Retrieve(ctx, query, k)
}

// Reset clears a session's conversation history.
func (s *Service) Reset(sessionID string) bool {
	engine := s.readyEngine()
	if engine == nil {
		return false
	}
	return engine.Reset(sessionID)
}
