// Package rag builds the embedding index from stored chunks and answers
// questions by retrieving passages from it.
package rag

import (
	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/corpus"
)

// Limits bounds how many chunks are admitted into the index: at most
// MaxTotal chunks in total, drawing at most PerSource from each source
// document, in source-enumeration order, stopping early once MaxTotal is
// reached. Zero disables a limit.
type Limits struct {
	MaxTotal  int
	PerSource int
}

// Admit applies l to collections and flattens the result, keeping file order.
func Admit(collections []corpus.Collection, l Limits) []corpus.Chunk {
	var out []corpus.Chunk
	for _, c := range collections {
		take := c.Chunks
		if l.PerSource > 0 && len(take) > l.PerSource {
			take = take[:l.PerSource]
		}
		if l.MaxTotal > 0 {
			room := l.MaxTotal - len(out)
			if room <= 0 {
				break
			}
			if len(take) > room {
				take = take[:room]
			}
		}
		out = append(out, take...)
	}
	return out
}

// LoadCorpus reads every stored collection and applies the limits. An empty
// store yields the built-in fallback passages; fallback reports whether that
// happened.
func LoadCorpus(store *corpus.Store, l Limits, logger zerolog.Logger) (chunks []corpus.Chunk, fallback bool, err error) {
	collections, err := store.LoadAll()
	if err != nil {
		return nil, false, err
	}
	if len(collections) == 0 {
		logger.Warn().Str("dir", store.Dir()).Msg("No chunk files found, using built-in passages")
		collections = corpus.Fallback()
		fallback = true
	}

	total := 0
	for _, c := range collections {
		total += len(c.Chunks)
	}
	chunks = Admit(collections, l)
	logger.Info().
		Int("collections", len(collections)).
		Int("available", total).
		Int("admitted", len(chunks)).
		Int("max_total", l.MaxTotal).
		Int("per_source", l.PerSource).
		Msg("Corpus loaded")
	return chunks, fallback, nil
}
