package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
	"github.com/bull/got-explorer/internal/index"
	"github.com/bull/got-explorer/internal/respond"
)

// Result is one answered question.
type Result struct {
	Answer    string      `json:"answer"`
	Hits      []index.Hit `json:"hits"`
	Generated bool        `json:"generated"`
}

// Engine runs the request pipeline: retrieve, then respond. Conversation
// history is keyed by a caller-supplied session id; an empty id is stateless.
type Engine struct {
	retriever *Retriever
	responder *respond.Responder
	history   *conversation.Store
	logger    zerolog.Logger
}

// NewEngine wires the pipeline. history may be nil to disable memory.
func NewEngine(retriever *Retriever, responder *respond.Responder, history *conversation.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		retriever: retriever,
		responder: responder,
		history:   history,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) Retriever() *Retriever {
	return e.retriever
}

// Ask answers question. It fails only with ErrEmptyQuery or ErrRetrieval.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (Result, error) {
	start := time.Now()

	hits, err := e.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		return Result{}, err
	}

	var past []conversation.Turn
	if e.history != nil {
		past = e.history.History(sessionID)
	}

	chunks := make([]corpus.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}
	ans := e.responder.Answer(ctx, question, chunks, past)

	if e.history != nil {
		e.history.Append(sessionID, conversation.Turn{Question: question, Answer: ans.Text})
	}

	e.logger.Debug().
		Str("session", sessionID).
		Int("hits", len(hits)).
		Bool("generated", ans.Generated).
		Dur("duration", time.Since(start)).
		Msg("Question answered")

	return Result{Answer: ans.Text, Hits: hits, Generated: ans.Generated}, nil
}

// Reset clears a session's history.
func (e *Engine) Reset(sessionID string) bool {
	if e.history == nil {
		return false
	}
	return e.history.Reset(sessionID)
}
