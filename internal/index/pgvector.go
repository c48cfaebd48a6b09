package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/bull/got-explorer/internal/corpus"
)

type chunkRow struct {
	bun.BaseModel `bun:"table:book_chunks,alias:c"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Space         string          `bun:"space,notnull"`
	Seq           int64           `bun:"seq,notnull"`
	BookTitle     string          `bun:"book_title,notnull"`
	Source        string          `bun:"source,notnull"`
	Chapter       string          `bun:"chapter,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float64         `bun:"score,scanonly"`
}

// fingerprintRow records the corpus each space was built from.
type fingerprintRow struct {
	bun.BaseModel `bun:"table:book_chunk_builds,alias:b"`
	Space         string `bun:"space,pk"`
	Fingerprint   string `bun:"fingerprint,notnull"`
}

// PGVectorConfig configures the Postgres backend.
type PGVectorConfig struct {
	DSN   string
	Space string
	Debug bool
}

// PGVector stores vectors in a Postgres table using the pgvector extension.
// Rows are partitioned by embedding space so several embedders can share a
// database.
type PGVector struct {
	mu    sync.Mutex
	db    *bun.DB
	space string
	dim   int
}

// NewPGVector connects and prepares the extension and table.
func NewPGVector(ctx context.Context, cfg PGVectorConfig) (*PGVector, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrUnavailable, err)
	}

	p := &PGVector{db: db, space: cfg.Space}
	if err := p.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PGVector) init(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := p.db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}
	if _, err := p.db.NewCreateTable().Model((*fingerprintRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create build table: %w", err)
	}
	_, err := p.db.NewCreateIndex().
		Model((*chunkRow)(nil)).
		Index("book_chunks_space_seq_idx").
		Column("space", "seq").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chunk index: %w", err)
	}
	return nil
}

func (p *PGVector) Add(ctx context.Context, entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if p.dim == 0 {
		p.dim = len(entries[0].Vector)
	}

	base, err := p.count(ctx)
	if err != nil {
		return err
	}

	rows := make([]chunkRow, len(entries))
	for i, e := range entries {
		if len(e.Vector) != p.dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), p.dim)
		}
		rows[i] = chunkRow{
			Space:      p.space,
			Seq:        int64(base + i),
			BookTitle:  e.Chunk.Metadata.BookTitle,
			Source:     e.Chunk.Metadata.Source,
			Chapter:    e.Chunk.Metadata.Chapter,
			ChunkIndex: e.Chunk.Metadata.ChunkIndex,
			Content:    e.Chunk.Content,
			Embedding:  pgvector.NewVector(e.Vector),
		}
	}

	if _, err := p.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	p.mu.Lock()
	dim := p.dim
	p.mu.Unlock()
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	vec := pgvector.NewVector(vector)
	var rows []chunkRow
	err := p.db.NewSelect().
		Model(&rows).
		ColumnExpr("?TableAlias.*").
		ColumnExpr("1 - (?TableAlias.embedding <=> ?) AS score", vec).
		Where("?TableAlias.space = ?", p.space).
		OrderExpr("?TableAlias.embedding <=> ?", vec).
		OrderExpr("?TableAlias.seq ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	rs := make([]ranked, len(rows))
	for i, r := range rows {
		rs[i] = ranked{
			hit: Hit{
				Chunk: corpus.Chunk{
					Content: r.Content,
					Metadata: corpus.Metadata{
						BookTitle:  r.BookTitle,
						Source:     r.Source,
						Chapter:    r.Chapter,
						ChunkIndex: r.ChunkIndex,
					},
				},
				Score: r.Score,
			},
			seq: r.Seq,
		}
	}
	return sortRanked(rs, k), nil
}

func (p *PGVector) Count(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count(ctx)
}

func (p *PGVector) count(ctx context.Context) (int, error) {
	n, err := p.db.NewSelect().Model((*chunkRow)(nil)).Where("space = ?", p.space).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Reset deletes this space's rows.
func (p *PGVector) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.db.NewDelete().Model((*chunkRow)(nil)).Where("space = ?", p.space).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := p.db.NewDelete().Model((*fingerprintRow)(nil)).Where("space = ?", p.space).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
	}
	p.dim = 0
	return nil
}

func (p *PGVector) Fingerprint(ctx context.Context) (string, error) {
	var row fingerprintRow
	err := p.db.NewSelect().Model(&row).Where("space = ?", p.space).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fingerprint: %w", err)
	}
	return row.Fingerprint, nil
}

func (p *PGVector) SetFingerprint(ctx context.Context, fp string) error {
	row := &fingerprintRow{Space: p.space, Fingerprint: fp}
	_, err := p.db.NewInsert().
		Model(row).
		On("CONFLICT (space) DO UPDATE").
		Set("fingerprint = EXCLUDED.fingerprint").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

func (p *PGVector) Close() error {
	return p.db.Close()
}
