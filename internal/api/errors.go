package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors

	switch {
	case err == nil:
		return http.StatusInternalServerError

	// Commands the current stage or lock state does not allow
	case domain.IsStageDiscipline(err):
		return http.StatusConflict

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidConfidence),
		errors.As(err, &verrs):
		return http.StatusUnprocessableEntity

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	var verrs validator.ValidationErrors

	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, session.ErrClosed):
		return "Session is no longer active"
	case errors.Is(err, session.ErrAnalysisPending):
		return "Comparison is still being generated"
	case errors.Is(err, domain.ErrLocked):
		return "Batch is locked"
	case errors.Is(err, domain.ErrNotHighlighted):
		return "Clipping is not highlighted"
	case errors.Is(err, domain.ErrInvalidSelection):
		return "Invalid clipping selection"
	case errors.Is(err, domain.ErrInvalidStage):
		return "Action not available in the current stage"

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.As(err, &verrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrInvalidConfidence):
		return "Invalid confidence"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. A non-empty fallback
// replaces the generic message of unmapped (500) errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusConflict {
		opts = append(opts, shared.WithActionDisabled())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError turns validator errors into a short message naming
// the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "gte", "lte", "gt", "lt":
		return "out of range"
	default:
		return "validation failed"
	}
}
