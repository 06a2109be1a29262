package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/refinement"
)

// RefinementHandler handles refinement batch requests.
type RefinementHandler struct {
	pipeline refinement.Pipeline
	logger   *slog.Logger
}

// NewRefinementHandler creates a new RefinementHandler.
func NewRefinementHandler(pipeline refinement.Pipeline, logger *slog.Logger) *RefinementHandler {
	if pipeline == nil {
		panic("pipeline cannot be nil for RefinementHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for RefinementHandler")
	}

	return &RefinementHandler{
		pipeline: pipeline,
		logger:   logger.With(slog.String("component", "refinement_handler")),
	}
}

// List handles GET /api/refinements.
func (h *RefinementHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	batches, err := h.pipeline.List(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list refinement batches")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batches)
}

// Open handles POST /api/refinements.
func (h *RefinementHandler) Open(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req OpenBatchRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	clippings := make([]domain.Clipping, len(req.Clippings))
	for i, text := range req.Clippings {
		clippings[i] = domain.Clipping{Text: text}
	}

	batch, err := h.pipeline.Open(r.Context(), userID, clippings, req.Source)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to open refinement batch")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, batch)
}

// Get handles GET /api/refinements/{id}.
func (h *RefinementHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	batch, err := h.pipeline.Get(r.Context(), userID, batchID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get refinement batch")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batch)
}

// Highlight handles POST /api/refinements/{id}/highlight/{index}.
func (h *RefinementHandler) Highlight(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	batch, err := h.pipeline.ToggleHighlight(r.Context(), userID, batchID, index)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to highlight clipping")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batch)
}

// Annotate handles POST /api/refinements/{id}/annotate/{index}.
func (h *RefinementHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req AnnotateRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	batch, err := h.pipeline.Annotate(r.Context(), userID, batchID, index, req.Note)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to annotate clipping")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batch)
}

// Advance handles POST /api/refinements/{id}/advance.
func (h *RefinementHandler) Advance(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	batch, err := h.pipeline.Advance(r.Context(), userID, batchID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to advance refinement batch")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batch)
}

// Finalize handles POST /api/refinements/{id}/finalize.
func (h *RefinementHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	var req FinalizeRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	items, err := h.pipeline.Finalize(r.Context(), userID, batchID, req.Selected)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to finalize refinement batch")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, FinalizeResponse{Items: items})
}

// Discard handles DELETE /api/refinements/{id}.
func (h *RefinementHandler) Discard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, batchID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	if err := h.pipeline.Discard(r.Context(), userID, batchID); err != nil {
		HandleAPIError(w, r, err, "Failed to discard refinement batch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
