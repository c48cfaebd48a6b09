// Package app wires configuration into the retrieval pipeline.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/api"
	"github.com/bull/got-explorer/internal/config"
	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
	"github.com/bull/got-explorer/internal/embedding"
	"github.com/bull/got-explorer/internal/index"
	"github.com/bull/got-explorer/internal/rag"
	"github.com/bull/got-explorer/internal/respond"
)

// NewEmbedder returns the embedder selected by cfg.Embedding.Provider.
func NewEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "hash":
		return embedding.NewHash(cfg.Embedding.Dimension), nil
	case "openai":
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:            cfg.OpenAI.APIKey,
			BaseURL:           cfg.OpenAI.BaseURL,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimension,
			BatchSize:         cfg.Embedding.BatchSize,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	case "ollama":
		return embedding.NewOllama(cfg.Ollama.URL, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedding.Provider)
	}
}

// NewGenerator returns the generator selected by cfg.Generation.Provider,
// or nil when answers are rendered from excerpts only.
func NewGenerator(cfg *config.Config) (respond.Generator, error) {
	llm := respond.LLMConfig{
		Model:             cfg.Generation.Model,
		MaxTokens:         cfg.Generation.MaxTokens,
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
	}
	switch cfg.Generation.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		llm.APIKey = cfg.OpenAI.APIKey
		llm.BaseURL = cfg.OpenAI.BaseURL
		return respond.NewOpenAIGenerator(llm)
	case "anthropic":
		llm.APIKey = cfg.Anthropic.APIKey
		return respond.NewAnthropicGenerator(llm)
	case "ollama":
		return respond.NewOllamaGenerator(cfg.Ollama.URL, cfg.Generation.Model, cfg.Generation.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generation.Provider)
	}
}

// dimensioned is implemented by embedders that know their vector size
// without a round trip.
type dimensioned interface {
	Dimension() int
}

// OpenIndex opens the configured backend for the embedder's space.
func OpenIndex(ctx context.Context, cfg *config.Config, emb embedding.Embedder) (index.Index, error) {
	switch cfg.Index.Backend {
	case "memory":
		return index.NewMemory(), nil
	case "chromem":
		return index.NewChromem(cfg.Index.ChromemPath, emb.Name())
	case "qdrant":
		dim, err := probeDimension(ctx, emb)
		if err != nil {
			return nil, err
		}
		return index.NewQdrant(ctx, index.QdrantConfig{
			Host:       cfg.Index.QdrantHost,
			Port:       cfg.Index.QdrantPort,
			Collection: QdrantCollection(cfg.Index.QdrantCollection, emb.Name()),
			Dimension:  dim,
		})
	case "pgvector":
		return index.NewPGVector(ctx, index.PGVectorConfig{
			DSN:   cfg.Index.DatabaseURL,
			Space: emb.Name(),
			Debug: cfg.Index.DatabaseDebug,
		})
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// QdrantCollection suffixes the configured collection with the embedding
// space so a model change never mixes vectors.
func QdrantCollection(base, space string) string {
	return base + "_" + strings.TrimPrefix(index.CollectionName(space), "chunks_")
}

func probeDimension(ctx context.Context, emb embedding.Embedder) (int, error) {
	if d, ok := emb.(dimensioned); ok {
		return d.Dimension(), nil
	}
	v, err := embedding.EmbedOne(ctx, emb, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("%w: probe embedding dimension: %w", rag.ErrIndexUnavailable, err)
	}
	return len(v), nil
}

// App owns the resources opened during initialization.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu  sync.Mutex
	idx index.Index
}

func New(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Initialize loads the corpus, builds the index and assembles the engine.
// It has the signature of api.Initializer.
func (a *App) Initialize(ctx context.Context) (*rag.Engine, api.Stats, error) {
	cfg := a.cfg

	store := corpus.NewStore(cfg.Corpus.ChunksDir, a.logger)
	chunks, fallback, err := rag.LoadCorpus(store, rag.Limits{
		MaxTotal:  cfg.Corpus.MaxTotalChunks,
		PerSource: cfg.Corpus.ChunksPerSource,
	}, a.logger)
	if err != nil {
		return nil, api.Stats{}, fmt.Errorf("load corpus: %w", err)
	}

	emb, err := NewEmbedder(cfg)
	if err != nil {
		return nil, api.Stats{}, err
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, api.Stats{}, err
	}

	backend := cfg.Index.Backend
	var target index.Index
	if fallback {
		// built-in passages are never written to a persistent store
		backend = "memory"
		target = index.NewMemory()
		if cfg.Index.Backend != backend {
			a.logger.Warn().Str("backend", cfg.Index.Backend).Msg("Serving built-in passages from memory")
		}
	} else {
		target, err = OpenIndex(ctx, cfg, emb)
		if err != nil {
			return nil, api.Stats{}, fmt.Errorf("open %s index: %w", backend, err)
		}
	}
	a.mu.Lock()
	a.idx = target
	a.mu.Unlock()

	idx, res, err := rag.NewBuilder(emb, target, rag.BuildOptions{
		BatchSize: cfg.Embedding.BatchSize,
		Rebuild:   cfg.Index.Rebuild,
	}, a.logger).Build(ctx, chunks)
	if err != nil {
		return nil, api.Stats{}, err
	}

	responder := respond.NewResponder(gen, respond.Options{
		Timeout:      cfg.Generation.Timeout,
		MaxChars:     cfg.Response.MaxChars,
		MaxSentences: cfg.Response.MaxSentences,
	}, a.logger)
	history := conversation.NewStore(cfg.Conversation.MaxTurns, cfg.Conversation.MaxSessions)
	engine := rag.NewEngine(rag.NewRetriever(emb, idx, cfg.Index.TopK), responder, history, a.logger)

	stats := api.Stats{
		Chunks:   res.Count,
		Fallback: fallback,
		Reused:   res.Reused,
		Embedder: emb.Name(),
		Backend:  backend,
	}
	if gen != nil {
		a.logger.Info().Str("generator", gen.Name()).Msg("Answers delegated to language model")
	}
	return engine, stats, nil
}

// Close releases the index opened by Initialize.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.idx == nil {
		return nil
	}
	err := a.idx.Close()
	a.idx = nil
	return err
}
