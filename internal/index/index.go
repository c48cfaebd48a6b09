// Package index stores chunk embeddings and answers nearest-neighbour queries.
package index

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/bull/got-explorer/internal/corpus"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUnavailable       = errors.New("vector store unavailable")
)

// Entry is one chunk and its embedding.
type Entry struct {
	Chunk  corpus.Chunk
	Vector []float32
}

// Hit is a search result. Score is cosine similarity, higher is closer.
type Hit struct {
	Chunk corpus.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Index is a vector store. Implementations return hits ordered by descending
// score, breaking ties by insertion order, and never more than k of them.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Reset removes every vector and the stored fingerprint so the index
	// can be rebuilt.
	Reset(ctx context.Context) error
	// Fingerprint returns the corpus fingerprint recorded by the last
	// complete build, or "" when none was recorded.
	Fingerprint(ctx context.Context) (string, error)
	SetFingerprint(ctx context.Context, fp string) error
	Close() error
}

// ranked pairs a hit with its insertion sequence for ordering.
type ranked struct {
	hit Hit
	seq int64
}

// sortRanked orders by score descending, then insertion sequence ascending,
// and truncates to k.
func sortRanked(rs []ranked, k int) []Hit {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].hit.Score != rs[j].hit.Score {
			return rs[i].hit.Score > rs[j].hit.Score
		}
		return rs[i].seq < rs[j].seq
	})
	if k < len(rs) {
		rs = rs[:k]
	}
	hits := make([]Hit, len(rs))
	for i, r := range rs {
		hits[i] = r.hit
	}
	return hits
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosine returns the cosine similarity of a and b given their norms.
func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var d float64
	for i := range a {
		d += float64(a[i]) * float64(b[i])
	}
	return d / (na * nb)
}
