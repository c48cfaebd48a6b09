package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/corpus"
	"github.com/bull/got-explorer/internal/embedding"
	"github.com/bull/got-explorer/internal/index"
)

const DefaultBatchSize = 64

// BuildOptions controls index construction.
type BuildOptions struct {
	BatchSize int
	// Rebuild discards vectors already held by a persistent index.
	Rebuild bool
}

// BuildResult describes a finished build.
type BuildResult struct {
	Embedded int
	Reused   bool
	Count    int
	Duration time.Duration
}

// Builder embeds chunks and loads them into an index.
type Builder struct {
	embedder embedding.Embedder
	target   index.Index
	opts     BuildOptions
	logger   zerolog.Logger
}

func NewBuilder(embedder embedding.Embedder, target index.Index, opts BuildOptions, logger zerolog.Logger) *Builder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Builder{
		embedder: embedder,
		target:   target,
		opts:     opts,
		logger:   logger.With().Str("component", "index_builder").Str("embedder", embedder.Name()).Logger(),
	}
}

// Fingerprint identifies a chunk list as embedded by the named embedder. Any
// change to chunk content, metadata or order changes it.
func Fingerprint(embedder string, chunks []corpus.Chunk) string {
	h := sha256.New()
	writeField(h, embedder)
	for _, c := range chunks {
		writeField(h, c.Content)
		writeField(h, c.Metadata.BookTitle)
		writeField(h, c.Metadata.Source)
		writeField(h, c.Metadata.Chapter)
		writeField(h, strconv.Itoa(c.Metadata.ChunkIndex))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(h hash.Hash, s string) {
	h.Write(strconv.AppendInt(nil, int64(len(s)), 10))
	h.Write([]byte{':'})
	h.Write([]byte(s))
}

// Build fills the target index with one vector per chunk, in order. A
// target that already holds vectors is served as is only when it was built
// from the same chunks by the same embedder and Rebuild is not set;
// otherwise it is reset first. Zero chunks produce an empty index.
func (b *Builder) Build(ctx context.Context, chunks []corpus.Chunk) (index.Index, BuildResult, error) {
	start := time.Now()
	fp := Fingerprint(b.embedder.Name(), chunks)

	existing, err := b.target.Count(ctx)
	if err != nil {
		return nil, BuildResult{}, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if existing > 0 {
		stored, err := b.target.Fingerprint(ctx)
		if err != nil {
			return nil, BuildResult{}, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
		switch {
		case b.opts.Rebuild:
			b.logger.Info().Int("vectors", existing).Msg("Discarding persisted index")
		case stored != fp:
			b.logger.Warn().Int("vectors", existing).Msg("Persisted index was built from a different corpus, rebuilding")
		default:
			b.logger.Info().Int("vectors", existing).Msg("Reusing persisted index")
			return b.target, BuildResult{Reused: true, Count: existing, Duration: time.Since(start)}, nil
		}
		if err := b.target.Reset(ctx); err != nil {
			return nil, BuildResult{}, fmt.Errorf("%w: reset: %w", ErrIndexUnavailable, err)
		}
	}

	for i := 0; i < len(chunks); i += b.opts.BatchSize {
		end := min(i+b.opts.BatchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}

		vectors, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, BuildResult{}, fmt.Errorf("%w: embed chunks %d-%d: %w", ErrIndexUnavailable, i, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, BuildResult{}, fmt.Errorf("%w: embed chunks %d-%d: %w", ErrIndexUnavailable, i, end, embedding.ErrCountMismatch)
		}

		entries := make([]index.Entry, len(batch))
		for j, c := range batch {
			entries[j] = index.Entry{Chunk: c, Vector: vectors[j]}
		}
		if err := b.target.Add(ctx, entries); err != nil {
			return nil, BuildResult{}, fmt.Errorf("%w: add chunks %d-%d: %w", ErrIndexUnavailable, i, end, err)
		}

		b.logger.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded batch")
	}

	// recorded last so an interrupted build is never reused
	if err := b.target.SetFingerprint(ctx, fp); err != nil {
		return nil, BuildResult{}, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	res := BuildResult{Embedded: len(chunks), Count: len(chunks), Duration: time.Since(start)}
	b.logger.Info().Int("chunks", res.Embedded).Dur("duration", res.Duration).Msg("Index built")
	return b.target, res, nil
}
