package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
	"github.com/bull/got-explorer/internal/embedding"
	"github.com/bull/got-explorer/internal/index"
	"github.com/bull/got-explorer/internal/ingest"
	"github.com/bull/got-explorer/internal/respond"
)

const jonSnow = "Jon Snow is the bastard son of Eddard Stark, Lord of Winterfell."

// countingEmbedder wraps an embedder and counts texts passed to it.
type countingEmbedder struct {
	embedding.Embedder
	texts atomic.Int64
	calls atomic.Int64
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, texts)
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{Embedder: embedding.NewHash(embedding.DefaultHashDimension)}
}

func collection(title, source string, n int) corpus.Collection {
	chunks := make([]corpus.Chunk, n)
	for i := range chunks {
		chunks[i] = corpus.Chunk{
			Content: fmt.Sprintf("%s passage %d", title, i),
			Metadata: corpus.Metadata{
				BookTitle:  title,
				Source:     source,
				Chapter:    corpus.DefaultChapter,
				ChunkIndex: i,
			},
		}
	}
	return *corpus.NewCollection(title, chunks)
}

func TestAdmit(t *testing.T) {
	cols := []corpus.Collection{
		collection("A", "a.txt", 10),
		collection("B", "b.txt", 10),
		collection("C", "c.txt", 10),
	}

	tests := []struct {
		name   string
		limits Limits
		want   map[string]int
		total  int
	}{
		{"no limits", Limits{}, map[string]int{"a.txt": 10, "b.txt": 10, "c.txt": 10}, 30},
		{"per source", Limits{PerSource: 3}, map[string]int{"a.txt": 3, "b.txt": 3, "c.txt": 3}, 9},
		{"total", Limits{MaxTotal: 15}, map[string]int{"a.txt": 10, "b.txt": 5}, 15},
		{"both", Limits{MaxTotal: 7, PerSource: 4}, map[string]int{"a.txt": 4, "b.txt": 3}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Admit(cols, tt.limits)
			assert.Len(t, got, tt.total)

			perSource := map[string]int{}
			for _, c := range got {
				perSource[c.Metadata.Source]++
			}
			assert.Equal(t, tt.want, perSource)

			// file order is kept
			assert.Equal(t, 0, got[0].Metadata.ChunkIndex)
			assert.Equal(t, "a.txt", got[0].Metadata.Source)
		})
	}
}

func TestLoadCorpus_FallbackWhenEmpty(t *testing.T) {
	store := corpus.NewStore(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())

	chunks, fallback, err := LoadCorpus(store, Limits{}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Len(t, chunks, 3)
	assert.Equal(t, jonSnow, chunks[0].Content)
}

func TestLoadCorpus_AppliesLimits(t *testing.T) {
	store := corpus.NewStore(t.TempDir(), zerolog.Nop())
	for _, name := range []string{"a.txt", "b.txt"} {
		c := collection(name, name, 5)
		_, err := store.Write(name, &c)
		require.NoError(t, err)
	}

	chunks, fallback, err := LoadCorpus(store, Limits{MaxTotal: 6, PerSource: 4}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Len(t, chunks, 6)
}

func TestBuild_EmptyInput(t *testing.T) {
	ctx := context.Background()
	emb := newCounting()

	idx, res, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).Build(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Embedded)
	assert.Zero(t, emb.calls.Load())

	hits, err := NewRetriever(emb, idx, 3).Retrieve(ctx, "Who is Jon Snow?", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuild_Batches(t *testing.T) {
	ctx := context.Background()
	emb := newCounting()
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 10)}, Limits{})

	idx, res, err := NewBuilder(emb, index.NewMemory(), BuildOptions{BatchSize: 4}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Embedded)
	assert.EqualValues(t, 3, emb.calls.Load())

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "one vector per chunk")
}

func TestBuild_ReusesIndexOfSameCorpus(t *testing.T) {
	ctx := context.Background()
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 5)}, Limits{})
	target := index.NewMemory()

	_, _, err := NewBuilder(newCounting(), target, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)

	emb := newCounting()
	_, res, err := NewBuilder(emb, target, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, 5, res.Count)
	assert.Zero(t, emb.calls.Load())

	_, res, err = NewBuilder(emb, target, BuildOptions{Rebuild: true}, zerolog.Nop()).Build(ctx, chunks[:2])
	require.NoError(t, err)
	assert.False(t, res.Reused)
	n, _ := target.Count(ctx)
	assert.Equal(t, 2, n)
}

func TestBuild_RebuildsWhenCorpusChanges(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	target, err := index.NewChromem(dir, "hash:384")
	require.NoError(t, err)
	fallback := corpus.Flatten(corpus.Fallback())
	_, _, err = NewBuilder(newCounting(), target, BuildOptions{}, zerolog.Nop()).Build(ctx, fallback)
	require.NoError(t, err)
	require.NoError(t, target.Close())

	// the chunk files appear between restarts
	reopened, err := index.NewChromem(dir, "hash:384")
	require.NoError(t, err)
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 4)}, Limits{})

	emb := newCounting()
	idx, res, err := NewBuilder(emb, reopened, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, 4, res.Embedded)
	assert.EqualValues(t, 4, emb.texts.Load())

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "stale vectors are dropped")

	hits, err := NewRetriever(emb, idx, 4).Retrieve(ctx, "Who is Jon Snow?", 4)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "a.txt", h.Chunk.Metadata.Source)
	}

	// an edit to one chunk is also a different corpus
	chunks[2].Content = "A passage rewritten"
	_, res, err = NewBuilder(newCounting(), reopened, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	assert.False(t, res.Reused)
}

func TestBuild_InterruptedBuildIsNotReused(t *testing.T) {
	ctx := context.Background()
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 6)}, Limits{})
	target := index.NewMemory()

	emb := newCounting()
	emb.err = errors.New("model offline")
	// a partial batch lands before the failure
	require.NoError(t, target.Add(ctx, []index.Entry{{Chunk: chunks[0], Vector: []float32{1, 0}}}))
	_, _, err := NewBuilder(emb, target, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.ErrorIs(t, err, ErrIndexUnavailable)

	_, res, err := NewBuilder(newCounting(), target, BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, 6, res.Count)
}

func TestFingerprint(t *testing.T) {
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 3)}, Limits{})
	fp := Fingerprint("hash:384", chunks)

	assert.Equal(t, fp, Fingerprint("hash:384", Admit([]corpus.Collection{collection("A", "a.txt", 3)}, Limits{})))
	assert.NotEqual(t, fp, Fingerprint("hash:256", chunks), "embedder is part of the fingerprint")
	assert.NotEqual(t, fp, Fingerprint("hash:384", chunks[:2]))

	moved := append([]corpus.Chunk(nil), chunks...)
	moved[1].Metadata.Chapter = "Bran"
	assert.NotEqual(t, fp, Fingerprint("hash:384", moved), "metadata is part of the fingerprint")
}

func TestBuild_EmbeddingFailure(t *testing.T) {
	emb := newCounting()
	emb.err = errors.New("model offline")
	chunks := Admit([]corpus.Collection{collection("A", "a.txt", 3)}, Limits{})

	_, _, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).Build(context.Background(), chunks)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestRetrieve_EmptyQueryNeverEmbeds(t *testing.T) {
	ctx := context.Background()
	emb := newCounting()
	chunks := corpus.Flatten(corpus.Fallback())
	idx, _, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)

	before := emb.texts.Load()
	r := NewRetriever(emb, idx, 2)
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := r.Retrieve(ctx, q, 2)
		assert.ErrorIs(t, err, ErrEmptyQuery, "query %q", q)
	}
	assert.Equal(t, before, emb.texts.Load())
}

func TestRetrieve_BoundAndDeterminism(t *testing.T) {
	ctx := context.Background()
	emb := newCounting()
	chunks := corpus.Flatten(corpus.Fallback())
	idx, _, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)
	r := NewRetriever(emb, idx, 2)

	for k := 1; k <= 5; k++ {
		hits, err := r.Retrieve(ctx, "Stark Winterfell", k)
		require.NoError(t, err)
		assert.Len(t, hits, min(k, len(chunks)))
	}

	hits, err := r.Retrieve(ctx, "Stark Winterfell", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "k <= 0 uses the default")

	first, err := r.Retrieve(ctx, "Who betrayed the Starks?", 3)
	require.NoError(t, err)
	second, err := r.Retrieve(ctx, "Who betrayed the Starks?", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRetrieve_WrapsFailures(t *testing.T) {
	emb := newCounting()
	emb.err = errors.New("model offline")

	_, err := NewRetriever(emb, index.NewMemory(), 2).Retrieve(context.Background(), "Who is Jon Snow?", 2)
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestJonSnowScenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	in := ingest.NewIngestor(ingest.NewChunker(ingest.DefaultMaxChunkSize))
	store := corpus.NewStore(dir, zerolog.Nop())
	docs := map[string]string{
		"jon.txt":   jonSnow,
		"other.txt": "Tyrion Lannister drinks wine in King's Landing.\n\nDaenerys hatches three dragons.",
	}
	for name, text := range docs {
		col, err := in.ExtractChunks(ingest.Document{Name: name, Data: []byte(text)})
		require.NoError(t, err)
		_, err = store.Write(name, col)
		require.NoError(t, err)
	}

	chunks, _, err := LoadCorpus(store, Limits{}, zerolog.Nop())
	require.NoError(t, err)

	emb := embedding.NewHash(embedding.DefaultHashDimension)
	idx, _, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
	require.NoError(t, err)

	engine := NewEngine(
		NewRetriever(emb, idx, 1),
		respond.NewResponder(nil, respond.Options{}, zerolog.Nop()),
		conversation.NewStore(10, 10),
		zerolog.Nop(),
	)

	res, err := engine.Ask(ctx, "", "Who is Jon Snow?")
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, jonSnow, res.Hits[0].Chunk.Content)
	assert.Contains(t, res.Answer, res.Hits[0].Chunk.Metadata.BookTitle)
	assert.Contains(t, res.Answer, jonSnow)
}

func TestEngine_SessionHistory(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHash(embedding.DefaultHashDimension)
	idx, _, err := NewBuilder(emb, index.NewMemory(), BuildOptions{}, zerolog.Nop()).
		Build(ctx, corpus.Flatten(corpus.Fallback()))
	require.NoError(t, err)

	history := conversation.NewStore(10, 10)
	engine := NewEngine(NewRetriever(emb, idx, 2), respond.NewResponder(nil, respond.Options{}, zerolog.Nop()), history, zerolog.Nop())

	_, err = engine.Ask(ctx, "s1", "Who is Jon Snow?")
	require.NoError(t, err)
	_, err = engine.Ask(ctx, "", "What was the Red Wedding?")
	require.NoError(t, err)

	turns := history.History("s1")
	require.Len(t, turns, 1)
	assert.Equal(t, "Who is Jon Snow?", turns[0].Question)

	assert.True(t, engine.Reset("s1"))
	assert.Empty(t, history.History("s1"))

	_, err = engine.Ask(ctx, "s1", "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, history.History("s1"), "rejected questions are not recorded")
}

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}
