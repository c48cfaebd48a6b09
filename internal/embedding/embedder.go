// Package embedding maps text to vectors using a local hash model or a
// remote embedding service.
package embedding

import (
	"context"
	"errors"
)

var (
	ErrMissingAPIKey = errors.New("embedding API key not set")
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// Embedder maps texts to vectors. Vectors from one embedder share a dimension
// and are only comparable with each other.
type Embedder interface {
	// Name identifies the embedding space, e.g. "openai:text-embedding-3-small".
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, ErrCountMismatch
	}
	return vectors[0], nil
}

// toFloat32 converts []float64 to []float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
