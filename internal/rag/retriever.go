package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/got-explorer/internal/embedding"
	"github.com/bull/got-explorer/internal/index"
)

const DefaultTopK = 2

// Retriever embeds questions with the embedder that built the index and
// returns the nearest chunks.
type Retriever struct {
	embedder embedding.Embedder
	idx      index.Index
	topK     int
}

func NewRetriever(embedder embedding.Embedder, idx index.Index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, idx: idx, topK: topK}
}

// TopK returns the default number of hits.
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns up to k hits nearest to query, best first. k <= 0 uses the
// default. Blank queries fail with ErrEmptyQuery before anything is embedded.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]index.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.topK
	}

	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}
	hits, err := r.idx.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrRetrieval, err)
	}
	return hits, nil
}
