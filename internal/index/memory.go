package index

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an exact brute-force index held in process memory.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []memEntry
	fp      string
}

type memEntry struct {
	Entry
	norm float64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %d has no vector", ErrDimensionMismatch, i)
		}
		if m.dim == 0 {
			m.dim = len(e.Vector)
		}
		if len(e.Vector) != m.dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), m.dim)
		}
	}
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		m.entries = append(m.entries, memEntry{
			Entry: Entry{Chunk: e.Chunk, Vector: vec},
			norm:  norm(vec),
		})
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.entries) == 0 {
		return []Hit{}, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), m.dim)
	}

	qn := norm(vector)
	rs := make([]ranked, len(m.entries))
	for i, e := range m.entries {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rs[i] = ranked{
			hit: Hit{Chunk: e.Chunk, Score: cosine(vector, e.Vector, qn, e.norm)},
			seq: int64(i),
		}
	}
	return sortRanked(rs, k), nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.dim = 0
	m.fp = ""
	return nil
}

func (m *Memory) Fingerprint(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fp, nil
}

func (m *Memory) SetFingerprint(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fp = fp
	return nil
}

func (m *Memory) Close() error {
	return nil
}
