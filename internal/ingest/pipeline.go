package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/corpus"
)

// Result contains statistics about a conversion run.
type Result struct {
	TotalDocs      int
	SuccessfulDocs int
	TotalChunks    int
	FailedDocs     []FailedDoc
	Outputs        []string
	Duration       time.Duration
}

// FailedDoc represents a document that could not be converted.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline converts every document of a source into chunk files.
type Pipeline struct {
	source   Source
	ingestor *Ingestor
	store    *corpus.Store
	exporter *MarkdownExporter
	logger   zerolog.Logger
}

// NewPipeline wires a conversion pipeline. exporter may be nil.
func NewPipeline(source Source, ingestor *Ingestor, store *corpus.Store, exporter *MarkdownExporter, logger zerolog.Logger) *Pipeline {
	if ingestor == nil {
		ingestor = NewIngestor(nil)
	}
	return &Pipeline{
		source:   source,
		ingestor: ingestor,
		store:    store,
		exporter: exporter,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Run converts all documents. A document that fails is recorded in
// FailedDocs and the run continues with the next one.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	names, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(names)
	p.logger.Info().Int("count", len(names)).Msg("Found documents")

	written := make(map[string]string, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		target := p.store.PathFor(name)
		if first, ok := written[target]; ok {
			err := fmt.Errorf("%w: %w: %s also maps to %s", ErrIngestion, ErrDuplicateOutput, first, filepath.Base(target))
			p.logger.Warn().Err(err).Str("path", name).Msg("Skipping document")
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: name, Reason: err.Error()})
			continue
		}

		path, chunks, err := p.processDocument(ctx, name)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", name).Msg("Failed to process document")
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   name,
				Reason: err.Error(),
			})
			continue
		}
		written[target] = name
		result.SuccessfulDocs++
		result.TotalChunks += chunks
		result.Outputs = append(result.Outputs, path)
	}

	result.Duration = time.Since(start)
	p.logger.Info().
		Int("successful", result.SuccessfulDocs).
		Int("failed", len(result.FailedDocs)).
		Int("chunks", result.TotalChunks).
		Dur("duration", result.Duration).
		Msg("Conversion complete")

	return result, nil
}

func (p *Pipeline) processDocument(ctx context.Context, name string) (string, int, error) {
	doc, err := p.source.Fetch(ctx, name)
	if err != nil {
		return "", 0, fmt.Errorf("%w: fetch: %w", ErrIngestion, err)
	}
	p.logger.Debug().Str("path", name).Int("size", len(doc.Data)).Msg("Fetched document")

	ex, err := p.ingestor.Extract(doc)
	if err != nil {
		return "", 0, err
	}

	collection := p.ingestor.Chunk(doc.Name, ex)
	if len(collection.Chunks) == 0 {
		return "", 0, fmt.Errorf("%w: %w", ErrIngestion, ErrNoText)
	}

	path, err := p.store.Write(doc.Name, collection)
	if err != nil {
		if errors.Is(err, corpus.ErrEmptyCollection) {
			return "", 0, fmt.Errorf("%w: %w", ErrIngestion, ErrNoText)
		}
		return "", 0, fmt.Errorf("store chunks: %w", err)
	}

	if p.exporter != nil {
		mdPath, err := p.exporter.Write(doc.Name, ex)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", name).Msg("Markdown export failed")
		} else {
			p.logger.Debug().Str("path", mdPath).Msg("Exported markdown")
		}
	}

	p.logger.Info().
		Str("path", name).
		Str("title", collection.BookTitle).
		Int("chunks", collection.TotalChunks).
		Msg("Converted document")
	return path, collection.TotalChunks, nil
}
