//go:build integration

package index

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQdrant skips when Qdrant is not running on localhost:6334.
func setupQdrant(t *testing.T) *Qdrant {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q, err := NewQdrant(ctx, QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "got_chunks_test",
		Dimension:  3,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	require.NoError(t, q.Reset(context.Background()))
	return q
}

// setupPGVector skips unless TEST_DATABASE_URL points at a pgvector database.
func setupPGVector(t *testing.T) *PGVector {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	p, err := NewPGVector(context.Background(), PGVectorConfig{DSN: dsn, Space: "test:3"})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, p.Reset(context.Background()))
	return p
}

func exerciseIndex(t *testing.T, idx Index) {
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, testEntries()))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := idx.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "east", hits[0].Chunk.Content)
	assert.Equal(t, "agot.txt", hits[0].Chunk.Metadata.Source)
	assert.Equal(t, 1, hits[0].Chunk.Metadata.ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)

	hits, err = idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "north again"}, contents(hits))

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.SetFingerprint(ctx, "corpus-a"))
	fp, err := idx.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "corpus-a", fp)

	require.NoError(t, idx.Reset(ctx))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	fp, err = idx.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Empty(t, fp, "reset forgets the fingerprint")
}

func TestQdrant_RoundTrip(t *testing.T) {
	q := setupQdrant(t)
	defer q.Close()
	exerciseIndex(t, q)
}

func TestPGVector_RoundTrip(t *testing.T) {
	p := setupPGVector(t)
	defer p.Close()
	exerciseIndex(t, p)
}
