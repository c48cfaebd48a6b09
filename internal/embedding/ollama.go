package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama embeds text with a local Ollama model through langchaingo.
type Ollama struct {
	embedder *embeddings.EmbedderImpl
	model    string
}

// NewOllama connects to the Ollama server at url.
func NewOllama(url, model string) (*Ollama, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(url),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &Ollama{embedder: embedder, model: model}, nil
}

func (o *Ollama) Name() string {
	return "ollama:" + o.model
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrCountMismatch, len(vectors), len(texts))
	}
	return vectors, nil
}
