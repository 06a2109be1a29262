package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/domain/srs"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createItem(t *testing.T, s *testServer, prompt string) *domain.MemoryItem {
	t.Helper()
	w := s.do(http.MethodPost, "/api/items", UpsertItemRequest{Prompt: prompt, Answer: "answer", Source: "Book"})
	requireStatus(t, w, http.StatusCreated)
	return decode[*domain.MemoryItem](t, w)
}

func TestItemLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	item := createItem(t, s, "What is spacing?")
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "What is spacing?", item.Title)
	assert.Equal(t, 1, item.Strength)
	assert.Equal(t, domain.StatusNeedsCare, item.Schedule.Status)
	assert.Equal(t, 1, item.Schedule.DaysUntilReview)

	w := s.do(http.MethodGet, "/api/items", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decode[[]*domain.MemoryItem](t, w), 1)

	w = s.do(http.MethodGet, "/api/items/"+item.ID, nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, item.ID, decode[*domain.MemoryItem](t, w).ID)

	w = s.do(http.MethodGet, "/api/items/unknown", nil)
	requireStatus(t, w, http.StatusNotFound)
}

func TestReviewItem(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	item := createItem(t, s, "What is spacing?")

	w := s.do(http.MethodPost, "/api/items/"+item.ID+"/review", ReviewRequest{Confidence: "confident", Answer: "spread out"})
	requireStatus(t, w, http.StatusOK)
	reviewed := decode[*domain.MemoryItem](t, w)
	assert.Equal(t, 2, reviewed.Strength)
	assert.Equal(t, 3, reviewed.Schedule.IntervalDays)
	assert.Equal(t, 3, reviewed.Schedule.DaysUntilReview)
	assert.Len(t, reviewed.Reviews, 2)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown confidence", "/api/items/" + item.ID + "/review", ReviewRequest{Confidence: "certain"}, http.StatusUnprocessableEntity},
		{"missing confidence", "/api/items/" + item.ID + "/review", ReviewRequest{}, http.StatusUnprocessableEntity},
		{"malformed body", "/api/items/" + item.ID + "/review", `{"confidence":`, http.StatusBadRequest},
		{"unknown item", "/api/items/missing/review", ReviewRequest{Confidence: "guess"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireStatus(t, s.do(http.MethodPost, tt.path, tt.body), tt.status)
		})
	}

	got, err := s.items.Get(t.Context(), testUser, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Strength, "rejected reviews leave the item unchanged")
}

func TestUpsertValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	requireStatus(t, s.do(http.MethodPost, "/api/items", UpsertItemRequest{}), http.StatusUnprocessableEntity)
	requireStatus(t, s.do(http.MethodPost, "/api/items", `{"prompt":"p","extra":true}`), http.StatusBadRequest)

	w := s.do(http.MethodPost, "/api/items", UpsertItemRequest{ID: "custom-id", Prompt: "p"})
	requireStatus(t, w, http.StatusCreated)
	assert.Equal(t, "custom-id", decode[*domain.MemoryItem](t, w).ID)
}

func TestUpsertExistingItemKeepsHistory(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	item := createItem(t, s, "What is spacing?")

	for range 3 {
		w := s.do(http.MethodPost, "/api/items/"+item.ID+"/review", ReviewRequest{Confidence: "confident"})
		requireStatus(t, w, http.StatusOK)
	}
	before, err := s.items.Get(t.Context(), testUser, item.ID)
	require.NoError(t, err)
	require.Equal(t, 4, before.Strength)
	require.Len(t, before.Reviews, 4)

	w := s.do(http.MethodPost, "/api/items", UpsertItemRequest{
		ID:     item.ID,
		Title:  "Spacing",
		Prompt: "Why does spacing help?",
		Answer: "retrieval effort",
		Source: "Make It Stick",
	})
	requireStatus(t, w, http.StatusCreated)
	updated := decode[*domain.MemoryItem](t, w)

	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, "Spacing", updated.Title)
	assert.Equal(t, "Why does spacing help?", updated.Prompt)
	assert.Equal(t, "retrieval effort", updated.Answer)
	assert.Equal(t, "Make It Stick", updated.Source)
	assert.Equal(t, before.Strength, updated.Strength)
	assert.Len(t, updated.Reviews, len(before.Reviews))
	assert.True(t, before.CreatedAt.Equal(updated.CreatedAt))

	stored, err := s.items.Get(t.Context(), testUser, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Strength)
	assert.Len(t, stored.Reviews, 4)

	// an empty title falls back to the prompt, as for new items
	w = s.do(http.MethodPost, "/api/items", UpsertItemRequest{ID: item.ID, Prompt: "Define spacing"})
	requireStatus(t, w, http.StatusCreated)
	assert.Equal(t, "Define spacing", decode[*domain.MemoryItem](t, w).Title)

	w = s.do(http.MethodGet, "/api/items", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decode[[]*domain.MemoryItem](t, w), 1)
}

func TestDueItems(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	first := createItem(t, s, "first")
	second := createItem(t, s, "second")

	requireStatus(t, s.do(http.MethodPost, "/api/items/"+second.ID+"/review", ReviewRequest{Confidence: "confident"}), http.StatusOK)

	w := s.do(http.MethodGet, "/api/items/due", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Empty(t, decode[[]*domain.MemoryItem](t, w))

	s.clock.t = t0.AddDate(0, 0, 1)
	w = s.do(http.MethodGet, "/api/items/due", nil)
	requireStatus(t, w, http.StatusOK)
	due := decode[[]*domain.MemoryItem](t, w)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].ID)
}

func TestChallengeAndSimulate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	item := createItem(t, s, "What is spacing?")

	w := s.do(http.MethodGet, "/api/items/"+item.ID+"/challenge", nil)
	requireStatus(t, w, http.StatusOK)
	challenge := decode[memory.Challenge](t, w)
	assert.Equal(t, srs.ChallengeRecall, challenge.Kind)
	assert.Equal(t, "What is spacing?", challenge.Question)

	w = s.do(http.MethodGet, "/api/items/"+item.ID+"/simulate?confidence=unsure", nil)
	requireStatus(t, w, http.StatusOK)
	curve := decode[[]srs.CurvePoint](t, w)
	require.Len(t, curve, srs.DefaultHorizonDays+1)
	assert.InDelta(t, 100.0, curve[0].Retention, 0.001)

	requireStatus(t, s.do(http.MethodGet, "/api/items/"+item.ID+"/simulate", nil), http.StatusUnprocessableEntity)

	got, err := s.items.Get(t.Context(), testUser, item.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reviews, 1, "simulation stores nothing")
}

func TestItemsRequireUser(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
