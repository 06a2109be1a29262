package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package and its providers. Every
// failure wraps ErrGeneration so callers can test for it with errors.Is.
var (
	// ErrGeneration is returned when a text generation request fails for any reason
	ErrGeneration = errors.New("text generation failed")

	// ErrInvalidResponse is returned when the LLM response is empty or malformed
	ErrInvalidResponse = fmt.Errorf("%w: invalid response from language model", ErrGeneration)

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = fmt.Errorf("%w: content blocked by safety filters", ErrGeneration)

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = fmt.Errorf("%w: transient failure", ErrGeneration)

	// ErrRejected is returned when the provider refuses the request itself,
	// e.g. bad credentials or an unknown model
	ErrRejected = fmt.Errorf("%w: request rejected by provider", ErrGeneration)

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrDisabled is returned by Disabled
	ErrDisabled = fmt.Errorf("%w: no text generation provider configured", ErrGeneration)

	// ErrEmptyPrompt is returned when asked to generate from a blank prompt
	ErrEmptyPrompt = fmt.Errorf("%w: prompt cannot be empty", ErrGeneration)
)

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrDisabled)
}
