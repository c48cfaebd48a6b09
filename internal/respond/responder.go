package respond

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
)

// Options tunes a Responder. Zero values mean no truncation and no timeout.
type Options struct {
	Timeout         time.Duration
	MaxChars        int
	MaxSentences    int
	MaxContextChars int
}

// Answer is the rendered reply and whether a language model produced it.
type Answer struct {
	Text      string
	Generated bool
}

// Responder formats answers, delegating to a Generator when one is set and
// falling back to raw excerpts when generation fails.
type Responder struct {
	gen    Generator
	opts   Options
	logger zerolog.Logger
}

// NewResponder creates a responder. gen may be nil for excerpt-only answers.
func NewResponder(gen Generator, opts Options, logger zerolog.Logger) *Responder {
	return &Responder{
		gen:    gen,
		opts:   opts,
		logger: logger.With().Str("component", "responder").Logger(),
	}
}

// Answer renders chunks for query. It never fails: generation errors are
// logged and replaced by the excerpt rendering.
func (r *Responder) Answer(ctx context.Context, query string, chunks []corpus.Chunk, history []conversation.Turn) Answer {
	if len(chunks) == 0 {
		return Answer{Text: NoInformationMessage}
	}

	if r.gen != nil {
		text, err := r.generate(ctx, query, chunks, history)
		if err == nil && text != "" {
			return Answer{Text: Truncate(text, r.opts.MaxChars, r.opts.MaxSentences), Generated: true}
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("generator", r.gen.Name()).Msg("Generation failed, using excerpts")
		} else {
			r.logger.Warn().Str("generator", r.gen.Name()).Msg("Generator returned empty answer, using excerpts")
		}
	}

	return Answer{Text: Truncate(FormatAnswer(query, chunks), r.opts.MaxChars, r.opts.MaxSentences)}
}

func (r *Responder) generate(ctx context.Context, query string, chunks []corpus.Chunk, history []conversation.Turn) (string, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := r.gen.Generate(ctx, BuildPrompt(query, chunks, history, r.opts.MaxContextChars))
	r.logger.Debug().Dur("duration", time.Since(start)).Str("generator", r.gen.Name()).Msg("Generation finished")
	return text, err
}
