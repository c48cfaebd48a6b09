package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const DefaultOllamaModel = "llama3.2"

// OllamaGenerator answers with a local Ollama model through langchaingo.
type OllamaGenerator struct {
	llm       *ollama.LLM
	model     string
	maxTokens int
}

func NewOllamaGenerator(url, model string, maxTokens int) (*OllamaGenerator, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	llm, err := ollama.New(
		ollama.WithServerURL(url),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create ollama client: %v", ErrGeneration, err)
	}
	return &OllamaGenerator{llm: llm, model: model, maxTokens: maxTokens}, nil
}

func (g *OllamaGenerator) Name() string {
	return "ollama:" + g.model
}

func (g *OllamaGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, p.System)}
	for _, t := range p.History {
		msgs = append(msgs,
			llms.TextParts(llms.ChatMessageTypeHuman, t.Question),
			llms.TextParts(llms.ChatMessageTypeAI, t.Answer),
		)
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, p.Question))

	var opts []llms.CallOption
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	resp, err := g.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: ollama: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: ollama returned no choices", ErrGeneration)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
