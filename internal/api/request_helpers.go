package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/platform/logger"
)

// requireUser extracts the user id placed in the context by the user
// middleware. It writes a 401 and returns false when there is none.
func requireUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		log.WarnContext(r.Context(), "user ID not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found")
		return "", false
	}
	return userID, true
}

// pathID returns a required path parameter.
func pathID(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if id == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return id, nil
}

// pathIndex returns a path parameter parsed as a non-negative index.
func pathIndex(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s has invalid format", domain.ErrValidation, name)
	}
	return i, nil
}

// handleUserAndPathID is a composite helper that extracts both the user id
// and a path id, writing the error response if either is missing.
func handleUserAndPathID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (string, string, bool) {
	if log == nil {
		log = logger.FromContextOrDefault(r.Context(), slog.Default())
	}

	userID, ok := requireUser(w, r, log)
	if !ok {
		return "", "", false
	}

	id, err := pathID(r, paramName)
	if err != nil {
		log.WarnContext(r.Context(), "invalid "+paramName, slog.String("param_name", paramName))
		HandleAPIError(w, r, err, "")
		return "", "", false
	}
	return userID, id, true
}

// decodeAndValidate reads the JSON body into req and validates it. It
// writes a 400 for malformed JSON and a 422 for validation failures.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any, log *slog.Logger) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		log.DebugContext(r.Context(), "invalid request body", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}
