package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/metis/internal/api"
	"github.com/phrazzld/metis/internal/config"
	"github.com/phrazzld/metis/internal/domain/srs"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/platform/anthropic"
	"github.com/phrazzld/metis/internal/platform/gemini"
	"github.com/phrazzld/metis/internal/platform/migrations"
	"github.com/phrazzld/metis/internal/platform/postgres"
	"github.com/phrazzld/metis/internal/platform/sqlite"
	"github.com/phrazzld/metis/internal/refinement"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
	"github.com/phrazzld/metis/internal/store/memstore"
)

// eventLogSize is the number of session events kept between polls.
const eventLogSize = 128

// application holds the shared dependencies of the server and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil for the memory store
	db      *sql.DB
	records store.RecordStore

	generator  generation.TextGenerator
	items      memory.Service
	pipeline   refinement.Pipeline
	sessions   *session.Registry
	newTickers session.TickerFunc
}

// newApplication opens the configured store and generator and builds the
// services on top of them.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:     cfg,
		logger:     logger,
		sessions:   session.NewRegistry(eventLogSize),
		newTickers: session.NewRealTicker,
	}

	var err error
	app.db, app.records, err = openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	app.generator, err = newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	decay := srs.NewServiceWithParams(srs.NewParams(srs.ParamsConfig{
		Location:    cfg.Memory.Location(),
		HorizonDays: cfg.Memory.HorizonDays,
	}))
	app.items = memory.NewService(app.records, decay, logger)
	app.pipeline = refinement.NewPipeline(app.records, app.items, logger)

	logger.Info("application initialized",
		slog.String("store", cfg.Store.Driver),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("timezone", cfg.Memory.Timezone))
	return app, nil
}

// router builds the HTTP handler serving the application.
func (app *application) router() http.Handler {
	h := api.Handlers{
		Items:       api.NewItemHandler(app.items, app.logger),
		Refinements: api.NewRefinementHandler(app.pipeline, app.logger),
		Session: api.NewSessionHandler(app.sessions, app.items, app.pipeline, app.generator, api.SessionConfig{
			DefaultMinutes:    app.config.Session.DefaultMinutes,
			GenerationTimeout: app.config.Session.GenerationTimeout,
			NewTicker:         app.newTickers,
		}, app.logger),
	}
	if app.db != nil {
		h.Ping = app.db.PingContext
	}
	return api.NewRouter(h, app.logger)
}

// cleanup releases the database connection.
func (app *application) cleanup() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", slog.String("error", err.Error()))
	}
}

// openStore opens the record store named by cfg. SQL stores are migrated
// to the latest schema before use.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*sql.DB, store.RecordStore, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory record store, data is lost on restart")
		return nil, memstore.New(), nil

	case "postgres":
		db, err := openPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, migrations.CommandUp); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, postgres.NewRecordStore(db, logger), nil

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(ctx, db, migrations.CommandUp); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, sqlite.NewRecordStore(db, logger), nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openPostgres connects to url and checks the connection.
func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open(postgres.DriverName, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// newGenerator creates the configured text generator. The "none" provider
// leaves compare-and-reveal on its placeholder texts.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.TextGenerator, error) {
	switch cfg.Provider {
	case "gemini":
		g, err := gemini.NewGenerator(ctx, logger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini generator: %w", err)
		}
		return g, nil
	case "anthropic":
		g, err := anthropic.NewGenerator(logger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize anthropic generator: %w", err)
		}
		return g, nil
	case "none":
		logger.Info("no LLM provider configured, comparisons use placeholder text")
		return generation.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
