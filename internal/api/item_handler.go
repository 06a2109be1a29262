package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/platform/logger"
)

// ItemHandler handles memory item requests.
type ItemHandler struct {
	items  memory.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(items memory.Service, logger *slog.Logger) *ItemHandler {
	if items == nil {
		panic("items cannot be nil for ItemHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for ItemHandler")
	}

	return &ItemHandler{
		items:  items,
		logger: logger.With(slog.String("component", "item_handler")),
		now:    time.Now,
	}
}

// List handles GET /api/items.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	items, err := h.items.List(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list memory items")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// Due handles GET /api/items/due.
func (h *ItemHandler) Due(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	items, err := h.items.Due(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list due items")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// Upsert handles POST /api/items.
func (h *ItemHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req UpsertItemRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	item, err := h.itemForUpsert(r.Context(), userID, req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to store memory item")
		return
	}

	stored, err := h.items.Upsert(r.Context(), userID, item)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to store memory item")
		return
	}

	log.DebugContext(r.Context(), "memory item stored", slog.String("item_id", stored.ID))
	shared.RespondWithJSON(w, r, http.StatusCreated, stored)
}

// itemForUpsert applies req to the stored item with the same id, keeping its
// strength and review history. Unknown or missing ids start a new item.
func (h *ItemHandler) itemForUpsert(ctx context.Context, userID string, req UpsertItemRequest) (*domain.MemoryItem, error) {
	if req.ID != "" {
		existing, err := h.items.Get(ctx, userID, req.ID)
		switch {
		case err == nil:
			existing.Title = req.Title
			if strings.TrimSpace(existing.Title) == "" {
				existing.Title = req.Prompt
			}
			existing.Prompt = req.Prompt
			existing.Answer = req.Answer
			existing.Source = req.Source
			return existing, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	item, err := domain.NewMemoryItem(req.Title, req.Prompt, req.Answer, req.Source, h.now())
	if err != nil {
		return nil, err
	}
	if req.ID != "" {
		item.ID = req.ID
	}
	return item, nil
}

// Get handles GET /api/items/{id}.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, itemID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	item, err := h.items.Get(r.Context(), userID, itemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get memory item")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Review handles POST /api/items/{id}/review.
func (h *ItemHandler) Review(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, itemID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	var req ReviewRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	item, err := h.items.Review(r.Context(), userID, itemID, domain.Confidence(req.Confidence), req.Answer)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record review")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Challenge handles GET /api/items/{id}/challenge.
func (h *ItemHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, itemID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	challenge, err := h.items.StartReview(r.Context(), userID, itemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start review")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, challenge)
}

// Simulate handles GET /api/items/{id}/simulate?confidence=.
func (h *ItemHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, itemID, ok := handleUserAndPathID(w, r, "id", log)
	if !ok {
		return
	}

	confidence, err := domain.ParseConfidence(r.URL.Query().Get("confidence"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	curve, err := h.items.Simulate(r.Context(), userID, itemID, confidence)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to simulate review")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, slices.Collect(curve))
}
