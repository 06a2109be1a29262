package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/refinement"
	"github.com/phrazzld/metis/internal/session"
)

// errNoSession is returned when the user has no running session.
var errNoSession = fmt.Errorf("%w: no active session", domain.ErrNotFound)

// SessionConfig holds the settings applied to every new session.
type SessionConfig struct {
	DefaultMinutes    int
	GenerationTimeout time.Duration

	// NewTicker drives stage countdowns. Nil uses real time.
	NewTicker session.TickerFunc
}

// SessionHandler runs one learning session per user. Completed sessions are
// planted as memory items, and their clippings open a refinement batch.
type SessionHandler struct {
	registry  *session.Registry
	items     memory.Service
	pipeline  refinement.Pipeline
	generator generation.TextGenerator
	cfg       SessionConfig
	logger    *slog.Logger
}

// NewSessionHandler creates a new SessionHandler. A nil generator disables
// compare-and-reveal generation.
func NewSessionHandler(
	registry *session.Registry,
	items memory.Service,
	pipeline refinement.Pipeline,
	generator generation.TextGenerator,
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionHandler {
	if registry == nil {
		panic("registry cannot be nil for SessionHandler")
	}
	if items == nil {
		panic("items cannot be nil for SessionHandler")
	}
	if pipeline == nil {
		panic("pipeline cannot be nil for SessionHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for SessionHandler")
	}

	return &SessionHandler{
		registry:  registry,
		items:     items,
		pipeline:  pipeline,
		generator: generator,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "session_handler")),
	}
}

// Start handles POST /api/session. Any session the user already has is
// cancelled.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	total := req.TotalMinutes
	if total == 0 {
		total = h.cfg.DefaultMinutes
	}

	handle, t, err := h.registry.Start(r.Context(), userID, session.Options{
		Goal:              req.Goal,
		Source:            req.Source,
		TotalMinutes:      total,
		Generator:         h.generator,
		GenerationTimeout: h.cfg.GenerationTimeout,
		NewTicker:         h.cfg.NewTicker,
		Logger:            h.logger.With(slog.String("user_id", userID)),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start session")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, SessionResponse{
		Session:    handle.Session.State(),
		Transition: &t,
		Events:     handle.Events.Drain(),
	})
}

// State handles GET /api/session. It drains the events recorded since the
// previous call.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	handle, _, ok := h.current(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SessionResponse{
		Session: handle.Session.State(),
		Events:  handle.Events.Drain(),
	})
}

// AddClipping handles POST /api/session/clippings.
func (h *SessionHandler) AddClipping(w http.ResponseWriter, r *http.Request) {
	handle, log, ok := h.current(w, r)
	if !ok {
		return
	}

	var req ClippingRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}
	if err := handle.Session.AddClipping(req.Text); err != nil {
		HandleAPIError(w, r, err, "Failed to add clipping")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SessionResponse{Session: handle.Session.State()})
}

// Advance handles POST /api/session/advance. Entering compare-and-reveal
// responds once both comparison replies are available.
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	handle, log, ok := h.current(w, r)
	if !ok {
		return
	}

	var req AdvanceSessionRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	t, err := handle.Session.Advance(detached(r), req.Input)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to advance session")
		return
	}
	h.respond(w, r, handle, t)
}

// Refresh handles POST /api/session/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	handle, _, ok := h.current(w, r)
	if !ok {
		return
	}

	t, err := handle.Session.RefreshComparison(detached(r))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to refresh comparison")
		return
	}
	h.respond(w, r, handle, t)
}

// Complete handles POST /api/session/complete.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	handle, log, ok := h.current(w, r)
	if !ok {
		return
	}

	var req CompleteSessionRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	t, err := handle.Session.Complete(detached(r), req.FinalWriting)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete session")
		return
	}
	h.respond(w, r, handle, t)
}

// Cancel handles DELETE /api/session.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	if !h.registry.Remove(userID) {
		HandleAPIError(w, r, errNoSession, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// current returns the caller's running session, writing a 404 if there is none.
func (h *SessionHandler) current(w http.ResponseWriter, r *http.Request) (session.Handle, *slog.Logger, bool) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return session.Handle{}, nil, false
	}

	handle, ok := h.registry.Get(userID)
	if !ok {
		HandleAPIError(w, r, errNoSession, "")
		return session.Handle{}, nil, false
	}
	return handle, log.With(slog.String("session_id", handle.Session.ID())), true
}

// respond writes the result of a session command, keeping a completed
// session's work before the response is sent. If keeping fails the session
// stays registered, and a repeated Complete returns the same completion.
func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, handle session.Handle, t session.Transition) {
	resp := SessionResponse{Transition: &t}

	if t.Completion != nil {
		userID, _ := shared.UserID(r.Context())
		item, batch, err := h.keep(r.Context(), userID, t.Completion)
		if err != nil {
			HandleAPIError(w, r, err, "Session completed but could not be saved")
			return
		}
		h.registry.Release(userID, handle.Session)
		resp.Item = item
		resp.Batch = batch
	}

	resp.Session = handle.Session.State()
	resp.Events = handle.Events.Drain()
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// keep plants the completion as a memory item and opens a refinement batch
// for its clippings, if it has any. Planting is keyed by session id, so a
// retry after a failed batch does not plant twice.
func (h *SessionHandler) keep(
	ctx context.Context,
	userID string,
	c *session.Completion,
) (*domain.MemoryItem, *domain.RefinementBatch, error) {
	item, err := h.items.PlantFromSession(ctx, userID, c)
	if err != nil {
		return nil, nil, err
	}

	if len(c.Clippings) == 0 {
		return item, nil, nil
	}
	batch, err := h.pipeline.Open(ctx, userID, c.Clippings, c.Source)
	if err != nil {
		return item, nil, err
	}
	return item, batch, nil
}

// detached keeps the request's values but not its cancellation, so a client
// disconnect does not abandon generation the session already started.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
