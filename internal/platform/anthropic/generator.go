// Package anthropic provides a generation.TextGenerator backed by the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/phrazzld/metis/internal/config"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/redact"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// messageCreator is the subset of the SDK's message service the generator calls.
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator implements generation.TextGenerator using Claude.
type Generator struct {
	logger    *slog.Logger
	messages  messageCreator
	model     string
	maxTokens int64
	retry     generation.RetryPolicy
}

var _ generation.TextGenerator = (*Generator)(nil)

// NewGenerator creates a Generator from the LLM configuration. The SDK's own
// retries are disabled; Generate applies the configured policy instead.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key cannot be empty", generation.ErrInvalidConfig)
	}

	c := anthropic.NewClient(
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
	)
	return newGenerator(logger, &c.Messages, cfg), nil
}

func newGenerator(log *slog.Logger, messages messageCreator, cfg config.LLMConfig) *Generator {
	model := cfg.ModelName
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Generator{
		logger:    log.With(slog.String("component", "anthropic_generator"), slog.String("model", model)),
		messages:  messages,
		model:     model,
		maxTokens: maxTokens,
		retry: generation.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelay,
		},
	}
}

// Generate implements generation.TextGenerator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	if strings.TrimSpace(prompt) == "" {
		return "", generation.ErrEmptyPrompt
	}

	start := time.Now()
	text, err := generation.Retry(ctx, log, g.retry, func(attempt int) (string, error) {
		log.DebugContext(ctx, "calling Claude API", slog.Int("attempt", attempt))
		return g.call(ctx, prompt)
	})
	if err != nil {
		log.ErrorContext(ctx, "Claude generation failed",
			redact.Attr(err),
			slog.Duration("elapsed", time.Since(start)))
		return "", err
	}

	log.InfoContext(ctx, "Claude generation succeeded",
		slog.Int("response_length", len(text)),
		slog.Duration("elapsed", time.Since(start)))
	return text, nil
}

func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	resp, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if string(resp.StopReason) == "refusal" {
		return "", generation.ErrContentBlocked
	}

	var b strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			b.WriteString(resp.Content[i].Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text block in response", generation.ErrInvalidResponse)
	}
	return text, nil
}

// classify maps SDK errors onto the generation taxonomy. Client errors other
// than timeouts and rate limits are not worth retrying.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
			return fmt.Errorf("%w: status %d: %v", generation.ErrTransientFailure, code, err)
		case code >= 400:
			return fmt.Errorf("%w: status %d: %v", generation.ErrRejected, code, err)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
