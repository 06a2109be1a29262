// Package migrations runs embedded goose migrations for the SQL record stores.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/redact"
	"github.com/pressly/goose/v3"
)

// TableName is the goose version table.
const TableName = "schema_migrations"

// Commands accepted by Run.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandVersion = "version"
)

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// slogGooseLogger adapts goose.Logger to slog. Fatalf does not exit; the
// error reaches the caller through Run.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Run executes command against db using the migrations in dir of fsys.
func Run(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir, command string) error {
	log := logger.FromContext(ctx).With(
		slog.String("component", "migrations"),
		slog.String("dialect", dialect),
		slog.String("command", command),
	)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(fsys)
	goose.SetTableName(TableName)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect %s: %w", dialect, err)
	}

	var err error
	switch command {
	case CommandUp:
		err = goose.UpContext(ctx, db, dir)
	case CommandDown:
		err = goose.DownContext(ctx, db, dir)
	case CommandStatus:
		err = goose.StatusContext(ctx, db, dir)
	case CommandVersion:
		err = goose.VersionContext(ctx, db, dir)
	default:
		return fmt.Errorf("unknown migration command %q (expected up, down, status or version)", command)
	}
	if err != nil {
		log.ErrorContext(ctx, "migration failed", redact.Attr(err))
		return fmt.Errorf("migration %s: %w", command, err)
	}

	log.InfoContext(ctx, "migration completed")
	return nil
}
