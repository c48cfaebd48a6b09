package index

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/bull/got-explorer/internal/corpus"
)

// tieWindow is how many extra candidates are fetched so insertion order can
// break ties among the last returned hits.
const tieWindow = 16

// fingerprintID is the single document of a collection's companion
// "_meta" collection; its content is the corpus fingerprint.
const fingerprintID = "fingerprint"

// Chromem stores vectors in an embedded chromem-go database, persisted to
// disk when a path is given.
type Chromem struct {
	mu   sync.Mutex
	db   *chromem.DB
	col  *chromem.Collection
	name string
	dim  int
}

// NewChromem opens (or creates) the collection for one embedding space.
// An empty path keeps the database in memory.
func NewChromem(path, space string) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: open chromem db: %v", ErrUnavailable, err)
		}
	}

	c := &Chromem{db: db, name: CollectionName(space)}
	if err := c.open(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chromem) open() error {
	col, err := c.db.GetOrCreateCollection(c.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	c.col = col
	return nil
}

func (c *Chromem) Add(ctx context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if c.dim == 0 {
		c.dim = len(entries[0].Vector)
	}

	base := c.col.Count()
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Vector) != c.dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), c.dim)
		}
		seq := base + i
		meta := chunkPayload(e.Chunk, int64(seq))
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%09d", seq),
			Content:   e.Chunk.Content,
			Metadata:  meta,
			Embedding: e.Vector,
		}
	}

	if err := c.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (c *Chromem) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	c.mu.Lock()
	col, dim := c.col, c.dim
	c.mu.Unlock()

	total := col.Count()
	if k <= 0 || total == 0 {
		return []Hit{}, nil
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	// chromem rejects nResults larger than the collection.
	n := min(total, k+tieWindow)
	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	rs := make([]ranked, len(results))
	for i, r := range results {
		chunk, seq := chunkFromPayload(r.Metadata)
		chunk.Content = r.Content
		rs[i] = ranked{hit: Hit{Chunk: chunk, Score: float64(r.Similarity)}, seq: seq}
	}
	return sortRanked(rs, k), nil
}

func (c *Chromem) Count(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.Count(), nil
}

func (c *Chromem) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range []string{c.name, c.metaName()} {
		if err := c.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	c.dim = 0
	return c.open()
}

func (c *Chromem) metaName() string {
	return c.name + "_meta"
}

func (c *Chromem) Fingerprint(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.db.GetCollection(c.metaName(), nil)
	if meta == nil {
		return "", nil
	}
	doc, err := meta.GetByID(ctx, fingerprintID)
	if err != nil {
		// never written
		return "", nil
	}
	return doc.Content, nil
}

func (c *Chromem) SetFingerprint(ctx context.Context, fp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.db.GetOrCreateCollection(c.metaName(), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	err = meta.AddDocument(ctx, chromem.Document{
		ID:        fingerprintID,
		Content:   fp,
		Embedding: []float32{1},
	})
	if err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

func (c *Chromem) Close() error {
	return nil
}

// chunkPayload flattens chunk metadata into string pairs.
func chunkPayload(ch corpus.Chunk, seq int64) map[string]string {
	return map[string]string{
		"book_title":  ch.Metadata.BookTitle,
		"source":      ch.Metadata.Source,
		"chapter":     ch.Metadata.Chapter,
		"chunk_index": strconv.Itoa(ch.Metadata.ChunkIndex),
		"seq":         strconv.FormatInt(seq, 10),
	}
}

func chunkFromPayload(meta map[string]string) (corpus.Chunk, int64) {
	idx, _ := strconv.Atoi(meta["chunk_index"])
	seq, _ := strconv.ParseInt(meta["seq"], 10, 64)
	return corpus.Chunk{
		Metadata: corpus.Metadata{
			BookTitle:  meta["book_title"],
			Source:     meta["source"],
			Chapter:    meta["chapter"],
			ChunkIndex: idx,
		},
	}, seq
}
