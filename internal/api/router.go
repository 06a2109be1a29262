package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/metis/internal/api/middleware"
	"github.com/phrazzld/metis/internal/api/shared"
)

// healthCheckTimeout bounds the readiness probe.
const healthCheckTimeout = 2 * time.Second

// Handlers groups the route handlers the router serves.
type Handlers struct {
	Items       *ItemHandler
	Refinements *RefinementHandler
	Session     *SessionHandler

	// Ping reports whether the record store is reachable. Nil always passes.
	Ping func(ctx context.Context) error
}

// NewRouter builds the HTTP router with all routes and middleware.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewTraceMiddleware(logger))
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.Items.List)
			r.Post("/", h.Items.Upsert)
			r.Get("/due", h.Items.Due)
			r.Get("/{id}", h.Items.Get)
			r.Post("/{id}/review", h.Items.Review)
			r.Get("/{id}/challenge", h.Items.Challenge)
			r.Get("/{id}/simulate", h.Items.Simulate)
		})

		r.Route("/refinements", func(r chi.Router) {
			r.Get("/", h.Refinements.List)
			r.Post("/", h.Refinements.Open)
			r.Get("/{id}", h.Refinements.Get)
			r.Post("/{id}/highlight/{index}", h.Refinements.Highlight)
			r.Post("/{id}/annotate/{index}", h.Refinements.Annotate)
			r.Post("/{id}/advance", h.Refinements.Advance)
			r.Post("/{id}/finalize", h.Refinements.Finalize)
			r.Delete("/{id}", h.Refinements.Discard)
		})

		r.Route("/session", func(r chi.Router) {
			r.Post("/", h.Session.Start)
			r.Get("/", h.Session.State)
			r.Delete("/", h.Session.Cancel)
			r.Post("/clippings", h.Session.AddClipping)
			r.Post("/advance", h.Session.Advance)
			r.Post("/refresh", h.Session.Refresh)
			r.Post("/complete", h.Session.Complete)
		})
	})

	r.Get("/health", health(h.Ping))

	return r
}

func health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Store unavailable", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
	}
}
