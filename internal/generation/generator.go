package generation

import "context"

// TextGenerator turns a prompt into text. Implementations must honor ctx
// cancellation and return errors wrapping ErrGeneration.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to TextGenerator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements TextGenerator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Disabled is the TextGenerator used when no provider is configured. It always
// fails, so callers fall back to their degraded output.
type Disabled struct{}

// Generate implements TextGenerator.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrDisabled
}

var (
	_ TextGenerator = GeneratorFunc(nil)
	_ TextGenerator = Disabled{}
)
