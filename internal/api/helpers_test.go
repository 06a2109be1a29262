package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/metis/internal/api/middleware"
	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain/srs"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/refinement"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
	"github.com/phrazzld/metis/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

// idleTicker never fires, so stage countdowns stay put.
type idleTicker struct{ c chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.c }
func (t idleTicker) Stop()               {}

func newIdleTicker(time.Duration) session.Ticker {
	return idleTicker{c: make(chan time.Time)}
}

type testServer struct {
	t        *testing.T
	clock    *fakeClock
	items    memory.Service
	pipeline refinement.Pipeline
	registry *session.Registry
	router   http.Handler
	logs     *logger.TestLogBuffer
}

func newTestServer(t *testing.T, gen generation.TextGenerator) *testServer {
	t.Helper()
	return newTestServerWithStore(t, gen, memstore.New())
}

func newTestServerWithStore(t *testing.T, gen generation.TextGenerator, records store.RecordStore) *testServer {
	t.Helper()

	log, buf := logger.GetTestLogger(t)
	clock := &fakeClock{t: t0}
	items := memory.NewService(records, srs.NewDefaultService(), log, memory.WithNow(clock.Now))
	pipeline := refinement.NewPipeline(records, items, log, refinement.WithNow(clock.Now))
	registry := session.NewRegistry(32)
	t.Cleanup(func() { registry.Remove(testUser) })

	router := NewRouter(Handlers{
		Items:       NewItemHandler(items, log),
		Refinements: NewRefinementHandler(pipeline, log),
		Session: NewSessionHandler(registry, items, pipeline, gen, SessionConfig{
			DefaultMinutes:    15,
			GenerationTimeout: time.Second,
			NewTicker:         newIdleTicker,
		}, log),
	}, log)

	return &testServer{
		t:        t,
		clock:    clock,
		items:    items,
		pipeline: pipeline,
		registry: registry,
		router:   router,
		logs:     buf,
	}
}

// do sends a request as testUser. body is encoded as JSON unless it is a string.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set(middleware.UserIDHeader, testUser)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

func requireDisabled(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	requireStatus(t, w, http.StatusConflict)
	resp := decode[shared.ErrorResponse](t, w)
	require.True(t, resp.ActionDisabled)
	require.NotEmpty(t, resp.TraceID)
}

// replyGenerator answers every prompt with its first line.
func replyGenerator() generation.TextGenerator {
	return generation.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
		return "reply: " + line, nil
	})
}
