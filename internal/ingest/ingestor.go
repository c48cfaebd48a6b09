package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bull/got-explorer/internal/corpus"
)

// Ingestor turns documents into chunk collections.
type Ingestor struct {
	chunker *Chunker
}

// NewIngestor returns an ingestor using chunker; nil selects the default size.
func NewIngestor(chunker *Chunker) *Ingestor {
	if chunker == nil {
		chunker = NewChunker(0)
	}
	return &Ingestor{chunker: chunker}
}

// Extract reads doc with the extractor registered for its extension.
func (in *Ingestor) Extract(doc Document) (*Extracted, error) {
	extractor, err := extractorFor(doc.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIngestion, doc.Name, err)
	}
	ex, err := safeExtract(extractor, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIngestion, doc.Name, err)
	}
	if ex.Title == "" {
		ex.Title = corpus.Stem(doc.Name)
	}
	return ex, nil
}

// safeExtract turns a parser panic on malformed input into an error.
func safeExtract(extractor Extractor, doc Document) (ex *Extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			ex, err = nil, fmt.Errorf("malformed document: %v", r)
		}
	}()
	return extractor.Extract(doc)
}

// Chunk splits extracted sections into chunks. The chapter carries forward
// from the last section that had a heading; chunk_index runs across the
// whole document.
func (in *Ingestor) Chunk(source string, ex *Extracted) *corpus.Collection {
	source = filepath.Base(source)
	chapter := corpus.DefaultChapter

	var chunks []corpus.Chunk
	for _, section := range ex.Sections {
		if h := strings.TrimSpace(section.Heading); h != "" {
			chapter = h
		}
		for _, text := range in.chunker.Split(Normalize(section.Text)) {
			chunks = append(chunks, corpus.Chunk{
				Content: text,
				Metadata: corpus.Metadata{
					BookTitle:  ex.Title,
					Source:     source,
					Chapter:    chapter,
					ChunkIndex: len(chunks),
				},
			})
		}
	}
	return corpus.NewCollection(ex.Title, chunks)
}

// ExtractChunks reads doc and splits it into a chunk collection.
func (in *Ingestor) ExtractChunks(doc Document) (*corpus.Collection, error) {
	ex, err := in.Extract(doc)
	if err != nil {
		return nil, err
	}
	c := in.Chunk(doc.Name, ex)
	if len(c.Chunks) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrIngestion, doc.Name, ErrNoText)
	}
	return c, nil
}
