package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/metis/internal/api/middleware"
	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
	"github.com/phrazzld/metis/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, s *testServer, req StartSessionRequest) SessionResponse {
	t.Helper()
	w := s.do(http.MethodPost, "/api/session", req)
	requireStatus(t, w, http.StatusCreated)
	return decode[SessionResponse](t, w)
}

func advance(t *testing.T, s *testServer, input string) SessionResponse {
	t.Helper()
	w := s.do(http.MethodPost, "/api/session/advance", AdvanceSessionRequest{Input: input})
	requireStatus(t, w, http.StatusOK)
	return decode[SessionResponse](t, w)
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, replyGenerator())

	resp := startSession(t, s, StartSessionRequest{Goal: "Understand spacing", Source: "Make It Stick"})
	assert.Equal(t, 15, resp.Session.Plan.TotalMinutes)
	assert.Equal(t, session.StagePredict, resp.Session.Stage.Kind)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, session.EventStageEntered, resp.Events[0].Kind)

	requireStatus(t, s.do(http.MethodPost, "/api/session/clippings", ClippingRequest{Text: "spacing beats massing"}), http.StatusOK)
	requireDisabled(t, s.do(http.MethodPost, "/api/session/refresh", nil))

	advance(t, s, "I think spacing helps")
	advance(t, s, "Everything I remember about spacing and retrieval")
	resp = advance(t, s, "The book will argue for spacing")
	require.NotNil(t, resp.Transition)
	assert.Equal(t, session.StageCompareAndReveal, resp.Transition.To)
	require.NotNil(t, resp.Transition.Comparison)
	assert.False(t, resp.Transition.Comparison.Feedback.Degraded)
	assert.False(t, resp.Transition.Comparison.ExpertSummary.Degraded)

	w := s.do(http.MethodPost, "/api/session/refresh", nil)
	requireStatus(t, w, http.StatusOK)
	assert.NotNil(t, decode[SessionResponse](t, w).Transition.Comparison)

	advance(t, s, "")
	advance(t, s, "I missed the interleaving part")

	requireStatus(t, s.do(http.MethodPost, "/api/session/complete", CompleteSessionRequest{}), http.StatusUnprocessableEntity)

	w = s.do(http.MethodPost, "/api/session/complete", CompleteSessionRequest{FinalWriting: "Spacing and retrieval work together"})
	requireStatus(t, w, http.StatusOK)
	resp = decode[SessionResponse](t, w)
	require.NotNil(t, resp.Transition.Completion)
	assert.True(t, resp.Session.Closed)

	require.NotNil(t, resp.Item)
	assert.Equal(t, "I missed the interleaving part", resp.Item.Title)
	assert.Equal(t, memory.KeyPointPrefix+"I missed the interleaving part", resp.Item.Prompt)
	assert.Equal(t, "Spacing and retrieval work together", resp.Item.Answer)

	require.NotNil(t, resp.Batch)
	require.Len(t, resp.Batch.Clippings, 1)
	assert.Equal(t, "spacing beats massing", resp.Batch.Clippings[0].Text)

	requireStatus(t, s.do(http.MethodGet, "/api/session", nil), http.StatusNotFound)
}

func TestSessionAdvanceFromFinalCompletes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	startSession(t, s, StartSessionRequest{Goal: "Goal", TotalMinutes: 15})

	for range 5 {
		advance(t, s, "input text here")
	}
	resp := advance(t, s, "final words")
	require.NotNil(t, resp.Transition.Completion)
	require.NotNil(t, resp.Item)
	assert.Nil(t, resp.Batch)
	assert.Equal(t, "final words", resp.Item.Answer)
}

// flakyStore fails writes to one collection while failing is set.
type flakyStore struct {
	store.RecordStore
	collection store.Collection
	failing    atomic.Bool
}

func (f *flakyStore) Put(ctx context.Context, collection store.Collection, userID, id string, data []byte) error {
	if collection == f.collection && f.failing.Load() {
		return fmt.Errorf("%w: connection reset", store.ErrUpdateFailed)
	}
	return f.RecordStore.Put(ctx, collection, userID, id, data)
}

func TestSessionCompletionRetriesAfterSaveFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		collection store.Collection
	}{
		{"item write fails", store.CollectionMemoryItems},
		{"batch write fails", store.CollectionRefinementBatches},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records := &flakyStore{RecordStore: memstore.New(), collection: tt.collection}
			s := newTestServerWithStore(t, nil, records)
			startSession(t, s, StartSessionRequest{Goal: "Goal", TotalMinutes: 15})
			requireStatus(t, s.do(http.MethodPost, "/api/session/clippings", ClippingRequest{Text: "a clipping"}), http.StatusOK)
			for range 5 {
				advance(t, s, "input text here")
			}

			records.failing.Store(true)
			w := s.do(http.MethodPost, "/api/session/complete", CompleteSessionRequest{FinalWriting: "final words"})
			requireStatus(t, w, http.StatusInternalServerError)
			assert.Equal(t, "Session completed but could not be saved", decode[shared.ErrorResponse](t, w).Error)

			// the session is kept so the learner can retry
			requireStatus(t, s.do(http.MethodGet, "/api/session", nil), http.StatusOK)

			records.failing.Store(false)
			w = s.do(http.MethodPost, "/api/session/complete", CompleteSessionRequest{FinalWriting: "final words"})
			requireStatus(t, w, http.StatusOK)
			resp := decode[SessionResponse](t, w)
			require.NotNil(t, resp.Item)
			assert.Equal(t, "final words", resp.Item.Answer)
			assert.Equal(t, resp.Session.ID, resp.Item.ID)
			require.NotNil(t, resp.Batch)
			assert.Equal(t, "a clipping", resp.Batch.Clippings[0].Text)

			items, err := s.items.List(t.Context(), testUser)
			require.NoError(t, err)
			assert.Len(t, items, 1)
			batches, err := s.pipeline.List(t.Context(), testUser)
			require.NoError(t, err)
			assert.Len(t, batches, 1)

			requireStatus(t, s.do(http.MethodGet, "/api/session", nil), http.StatusNotFound)
		})
	}
}

func TestSessionDegradedWithoutGenerator(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	startSession(t, s, StartSessionRequest{Goal: "Goal"})

	advance(t, s, "prediction")
	advance(t, s, "a long enough brain dump")
	resp := advance(t, s, "ai prediction")

	cmp := resp.Transition.Comparison
	require.NotNil(t, cmp)
	assert.True(t, cmp.Feedback.Degraded)
	assert.Equal(t, session.FeedbackUnavailable, cmp.Feedback.Text)
	assert.Equal(t, session.SummaryUnavailable, cmp.ExpertSummary.Text)
}

func TestSessionGenerationSurvivesClientCancel(t *testing.T) {
	t.Parallel()
	gen := generation.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return "generated", nil
		}
	})
	s := newTestServer(t, gen)
	startSession(t, s, StartSessionRequest{Goal: "Goal"})
	advance(t, s, "prediction")
	advance(t, s, "a long enough brain dump")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/session/advance", strings.NewReader(`{"input":"ai prediction"}`))
	r.Header.Set(middleware.UserIDHeader, testUser)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r.WithContext(ctx))

	requireStatus(t, w, http.StatusOK)
	resp := decode[SessionResponse](t, w)
	assert.Equal(t, "generated", resp.Transition.Comparison.Feedback.Text)
	assert.False(t, resp.Transition.Comparison.Feedback.Degraded)
}

func TestSessionCancelAndMissing(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	requireStatus(t, s.do(http.MethodGet, "/api/session", nil), http.StatusNotFound)
	requireStatus(t, s.do(http.MethodDelete, "/api/session", nil), http.StatusNotFound)
	requireStatus(t, s.do(http.MethodPost, "/api/session/advance", AdvanceSessionRequest{}), http.StatusNotFound)

	first := startSession(t, s, StartSessionRequest{Goal: "Goal"})
	second := startSession(t, s, StartSessionRequest{Goal: "Other goal"})
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	w := s.do(http.MethodGet, "/api/session", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "Other goal", decode[SessionResponse](t, w).Session.Goal)

	requireStatus(t, s.do(http.MethodDelete, "/api/session", nil), http.StatusNoContent)
	requireStatus(t, s.do(http.MethodGet, "/api/session", nil), http.StatusNotFound)

	items, err := s.items.List(t.Context(), testUser)
	require.NoError(t, err)
	assert.Empty(t, items, "cancelled sessions plant nothing")
}

func TestStartSessionValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	requireStatus(t, s.do(http.MethodPost, "/api/session", StartSessionRequest{}), http.StatusUnprocessableEntity)
	requireStatus(t, s.do(http.MethodPost, "/api/session", StartSessionRequest{Goal: "   "}), http.StatusUnprocessableEntity)

	resp := startSession(t, s, StartSessionRequest{Goal: "Goal", TotalMinutes: 20})
	assert.Equal(t, 30, resp.Session.Plan.TotalMinutes, "unsupported lengths fall back")
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "ok", decode[HealthResponse](t, w).Status)

	failing := health(func(context.Context) error { return assert.AnError })
	w = httptest.NewRecorder()
	failing(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
