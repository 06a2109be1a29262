package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/metis/internal/config"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/redact"
	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// contentGenerator is the subset of *genai.Models the generator calls.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator implements generation.TextGenerator using the Gemini API.
type Generator struct {
	logger *slog.Logger
	models contentGenerator
	model  string
	retry  generation.RetryPolicy
}

var _ generation.TextGenerator = (*Generator)(nil)

// NewGenerator creates a Generator from the LLM configuration.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, client.Models, cfg), nil
}

func newGenerator(log *slog.Logger, models contentGenerator, cfg config.LLMConfig) *Generator {
	model := cfg.ModelName
	if model == "" {
		model = DefaultModel
	}

	return &Generator{
		logger: log.With(slog.String("component", "gemini_generator"), slog.String("model", model)),
		models: models,
		model:  model,
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
		log.DebugContext(ctx, "calling Gemini API",
			slog.Int("attempt", attempt),
			slog.Int("prompt_length", len(prompt)))
		return g.call(ctx, prompt)
	})
	if err != nil {
		log.ErrorContext(ctx, "Gemini generation failed",
			redact.Attr(err),
			slog.Duration("elapsed", time.Since(start)))
		return "", err
	}

	log.InfoContext(ctx, "Gemini generation succeeded",
		slog.Int("response_length", len(text)),
		slog.Duration("elapsed", time.Since(start)))
	return text, nil
}

func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	return extractText(resp)
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		return "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", generation.ErrContentBlocked
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text in response", generation.ErrInvalidResponse)
	}
	return text, nil
}
