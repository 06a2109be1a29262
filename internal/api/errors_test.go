package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nil error", nil, http.StatusInternalServerError},
		{"locked", fmt.Errorf("%w: unlocks at tomorrow", domain.ErrLocked), http.StatusConflict},
		{"invalid stage", domain.ErrInvalidStage, http.StatusConflict},
		{"not highlighted", domain.ErrNotHighlighted, http.StatusConflict},
		{"invalid selection", domain.ErrInvalidSelection, http.StatusConflict},
		{"session closed", session.ErrClosed, http.StatusConflict},
		{"analysis pending", session.ErrAnalysisPending, http.StatusConflict},
		{"not found", fmt.Errorf("%w: memory item %q", domain.ErrNotFound, "x"), http.StatusNotFound},
		{"store not found", store.ErrRecordNotFound, http.StatusNotFound},
		{"validation", domain.ErrValidation, http.StatusUnprocessableEntity},
		{"empty completion", memory.ErrEmptyCompletion, http.StatusUnprocessableEntity},
		{"invalid confidence", domain.ErrInvalidConfidence, http.StatusUnprocessableEntity},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"generation failure", generation.ErrTransientFailure, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.status, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"locked", domain.ErrLocked, "Batch is locked"},
		{"closed", session.ErrClosed, "Session is no longer active"},
		{"pending", session.ErrAnalysisPending, "Comparison is still being generated"},
		{"stage", domain.ErrInvalidStage, "Action not available in the current stage"},
		{"not found", domain.ErrNotFound, "Not found"},
		{"confidence", fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidConfidence), "Invalid confidence"},
		{"validation", domain.ErrValidation, "Validation error"},
		{"internal detail", errors.New("pq: relation records does not exist"), "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := shared.ValidateRequest(ReviewRequest{Confidence: "certain"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	assert.Equal(t, "Invalid confidence: invalid value", SanitizeValidationError(err))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
	assert.Equal(t, http.StatusUnprocessableEntity, MapErrorToStatusCode(err))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		fallback string
		status   int
		message  string
		disabled bool
	}{
		{"disabled action", domain.ErrLocked, "", http.StatusConflict, "Batch is locked", true},
		{"not found keeps message", domain.ErrNotFound, "Failed", http.StatusNotFound, "Not found", false},
		{"fallback for internal", errors.New("boom"), "Failed to list", http.StatusInternalServerError, "Failed to list", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			w := httptest.NewRecorder()

			HandleAPIError(w, r, tt.err, tt.fallback)

			assert.Equal(t, tt.status, w.Code)
			resp := decode[shared.ErrorResponse](t, w)
			assert.Equal(t, tt.message, resp.Error)
			assert.Equal(t, tt.disabled, resp.ActionDisabled)
		})
	}
}
