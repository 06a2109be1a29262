package gemini

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/metis/internal/config"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastModel string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel = model
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return textResponse(contents[0].Parts[0].Text), nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{MaxRetries: 2, RetryDelay: time.Millisecond}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("joins text parts", func(t *testing.T) {
		t.Parallel()
		fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("Hello, ", "world")}}
		g := newGenerator(discard(), fake, testConfig())

		text, err := g.Generate(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "Hello, world", text)
		assert.Equal(t, DefaultModel, fake.lastModel)
	})

	t.Run("configured model", func(t *testing.T) {
		t.Parallel()
		fake := &fakeModels{}
		cfg := testConfig()
		cfg.ModelName = "gemini-custom"
		g := newGenerator(discard(), fake, cfg)

		_, err := g.Generate(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "gemini-custom", fake.lastModel)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()
		fake := &fakeModels{errs: []error{errors.New("503"), errors.New("503")}}
		g := newGenerator(discard(), fake, testConfig())

		text, err := g.Generate(context.Background(), "echo")
		require.NoError(t, err)
		assert.Equal(t, "echo", text)
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("safety block is permanent", func(t *testing.T) {
		t.Parallel()
		blocked := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}
		fake := &fakeModels{responses: []*genai.GenerateContentResponse{blocked}}
		g := newGenerator(discard(), fake, testConfig())

		_, err := g.Generate(context.Background(), "prompt")
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
		assert.ErrorIs(t, err, generation.ErrGeneration)
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("empty prompt", func(t *testing.T) {
		t.Parallel()
		fake := &fakeModels{}
		g := newGenerator(discard(), fake, testConfig())

		_, err := g.Generate(context.Background(), "   ")
		assert.ErrorIs(t, err, generation.ErrEmptyPrompt)
		assert.Zero(t, fake.calls)
	})
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	_, err := extractText(nil)
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = extractText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = extractText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = extractText(textResponse("  "))
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)
}

func TestNewGeneratorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(context.Background(), nil, config.LLMConfig{GeminiAPIKey: "k"})
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), discard(), config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
