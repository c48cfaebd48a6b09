package respond

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 512
)

// AnthropicGenerator answers with the Claude messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

func NewAnthropicGenerator(cfg LLMConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", ErrGeneration)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   cfg.limiter(),
	}, nil
}

func (g *AnthropicGenerator) Name() string {
	return "anthropic:" + g.model
}

func (g *AnthropicGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	var msgs []anthropic.MessageParam
	for _, t := range p.History {
		msgs = append(msgs,
			anthropic.NewUserMessage(anthropic.NewTextBlock(t.Question)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Answer)),
		)
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(p.Question)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: p.System}},
		Messages:  msgs,
	}

	var answer string
	operation := func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		resp, err := g.client.Messages.New(ctx, params)
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return backoff.Permanent(err)
		}

		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		answer = strings.TrimSpace(b.String())
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(retryPolicy(), ctx)); err != nil {
		return "", fmt.Errorf("%w: messages: %v", ErrGeneration, err)
	}
	return answer, nil
}
