package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/phrazzld/metis/internal/redact"
)

// RetryPolicy controls how provider calls are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BaseDelay is the backoff before the first retry; later retries double it
	BaseDelay time.Duration
}

// Backoff returns the jittered delay before retry number attempt (0-based):
// BaseDelay * 2^attempt * [0.5, 1.0).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(backoff * jitter)
}

// Retry calls fn until it succeeds, returns a permanent error, the retries are
// exhausted or ctx is done. fn receives the 1-based attempt number.
func Retry(ctx context.Context, log *slog.Logger, policy RetryPolicy, fn func(attempt int) (string, error)) (string, error) {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		text, err := fn(attempt + 1)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if IsPermanent(err) {
			log.WarnContext(ctx, "permanent generation error, not retrying",
				slog.Int("attempt", attempt+1),
				redact.Attr(err))
			return "", err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrTransientFailure, ctxErr)
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Backoff(attempt)
		log.InfoContext(ctx, "retrying generation after delay",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			redact.Attr(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %w", ErrTransientFailure, ctx.Err())
		}
	}

	if !errors.Is(lastErr, ErrGeneration) {
		lastErr = fmt.Errorf("%w: %w", ErrTransientFailure, lastErr)
	}
	return "", fmt.Errorf("exceeded %d retries: %w", policy.MaxRetries, lastErr)
}
