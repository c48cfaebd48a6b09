package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/got-explorer/internal/corpus"
)

// upsertBatchSize bounds the number of points per upsert request.
const upsertBatchSize = 100

// fingerprintKey is the collection metadata key holding the corpus fingerprint.
const fingerprintKey = "corpus_fingerprint"

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port
	Collection string
	Dimension  int
}

// Qdrant stores vectors in a Qdrant collection over gRPC.
type Qdrant struct {
	mu         sync.Mutex
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrant connects, waits for the server to report healthy and ensures the
// collection exists with cosine distance.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: qdrant needs a positive vector dimension", ErrDimensionMismatch)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: cfg.Collection,
		dim:        cfg.Dimension,
	}

	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := q.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return q.Health(ctx) }, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection when missing. Idempotent.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "source",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field source: %w", err)
	}
	return nil
}

// pointID derives a stable UUID from the collection and insertion sequence.
func (q *Qdrant) pointID(seq int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "qdrant://%s/%d", q.collection, seq)).String()
}

func (q *Qdrant) Add(ctx context.Context, entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range entries {
		if len(e.Vector) != q.dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), q.dim)
		}
	}

	base, err := q.count(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < len(entries); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(entries))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j, e := range entries[i:end] {
			seq := int64(base + i + j)
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(q.pointID(seq)),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"content":     e.Chunk.Content,
					"book_title":  e.Chunk.Metadata.BookTitle,
					"source":      e.Chunk.Metadata.Source,
					"chapter":     e.Chunk.Metadata.Chapter,
					"chunk_index": e.Chunk.Metadata.ChunkIndex,
					"seq":         seq,
				}),
			})
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if len(vector) != q.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), q.dim)
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k + tieWindow)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	rs := make([]ranked, 0, len(results))
	for _, r := range results {
		p := r.Payload
		rs = append(rs, ranked{
			hit: Hit{
				Chunk: corpus.Chunk{
					Content: p["content"].GetStringValue(),
					Metadata: corpus.Metadata{
						BookTitle:  p["book_title"].GetStringValue(),
						Source:     p["source"].GetStringValue(),
						Chapter:    p["chapter"].GetStringValue(),
						ChunkIndex: int(p["chunk_index"].GetIntegerValue()),
					},
				},
				Score: float64(r.Score),
			},
			seq: p["seq"].GetIntegerValue(),
		})
	}
	return sortRanked(rs, k), nil
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count(ctx)
}

func (q *Qdrant) count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Reset drops and recreates the collection.
func (q *Qdrant) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return q.EnsureCollection(ctx)
}

func (q *Qdrant) Fingerprint(ctx context.Context) (string, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return "", fmt.Errorf("failed to get collection info: %w", err)
	}
	return info.GetConfig().GetMetadata()[fingerprintKey].GetStringValue(), nil
}

func (q *Qdrant) SetFingerprint(ctx context.Context, fp string) error {
	err := q.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
		CollectionName: q.collection,
		Metadata:       qdrant.NewValueMap(map[string]any{fingerprintKey: fp}),
	})
	if err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
