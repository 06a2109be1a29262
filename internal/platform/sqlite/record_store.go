// Package sqlite provides a single-file store.RecordStore on the pure-Go
// modernc.org/sqlite driver, for local use without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/platform/migrations"
	"github.com/phrazzld/metis/internal/redact"
	"github.com/phrazzld/metis/internal/store"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DriverName is the database/sql driver used to open connections.
const DriverName = "sqlite"

// Open opens (or creates) the database at path with WAL journaling and a busy
// timeout. The parent directory is created if needed.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; extra connections only add SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Migrate runs a goose command against db with the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	return migrations.Run(ctx, db, "sqlite3", migrationFS, "migrations", command)
}

// RecordStore implements store.RecordStore on SQLite.
type RecordStore struct {
	db     store.DBTX
	pool   *sql.DB
	logger *slog.Logger
}

var (
	_ store.RecordStore = (*RecordStore)(nil)
	_ store.Batcher     = (*RecordStore)(nil)
)

// NewRecordStore creates a RecordStore on db. If logger is nil, the default
// logger is used.
func NewRecordStore(db *sql.DB, logger *slog.Logger) *RecordStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RecordStore{
		db:     db,
		pool:   db,
		logger: logger.With(slog.String("component", "sqlite_record_store")),
	}
}

// Get implements store.RecordStore.
func (s *RecordStore) Get(ctx context.Context, collection store.Collection, userID string) ([]store.Record, error) {
	if err := store.ValidateKey(collection, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ? AND user_id = ? ORDER BY id`,
		string(collection), userID)
	if err != nil {
		return nil, s.fail(ctx, collection, "get", "", err)
	}
	defer func() { _ = rows.Close() }()

	var records []store.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, s.fail(ctx, collection, "get", "", err)
		}
		records = append(records, store.Record{ID: id, Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, collection, "get", "", err)
	}

	return records, nil
}

// Put implements store.RecordStore.
func (s *RecordStore) Put(ctx context.Context, collection store.Collection, userID, id string, data []byte) error {
	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}
	if id == "" || len(data) == 0 {
		return fmt.Errorf("%w: record id and data are required", store.ErrInvalidEntity)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (collection, user_id, id, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, user_id, id)
		DO UPDATE SET data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		string(collection), userID, id, string(data))
	if err != nil {
		return s.fail(ctx, collection, "put", id, fmt.Errorf("%w: %w", store.ErrUpdateFailed, mapError(err)))
	}
	return nil
}

// Delete implements store.RecordStore.
func (s *RecordStore) Delete(ctx context.Context, collection store.Collection, userID, id string) error {
	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND user_id = ? AND id = ?`,
		string(collection), userID, id)
	if err != nil {
		return s.fail(ctx, collection, "delete", id, fmt.Errorf("%w: %w", store.ErrDeleteFailed, err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return s.fail(ctx, collection, "delete", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrRecordNotFound, collection, id)
	}
	return nil
}

// ApplyBatch implements store.Batcher inside a single transaction.
func (s *RecordStore) ApplyBatch(ctx context.Context, userID string, ops []store.Op) error {
	if s.pool == nil {
		return fmt.Errorf("%w: nested batch", store.ErrTransactionFailed)
	}

	return store.RunInTransaction(ctx, s.pool, func(ctx context.Context, tx *sql.Tx) error {
		txStore := &RecordStore{db: tx, logger: s.logger}
		return store.Apply(ctx, struct{ store.RecordStore }{txStore}, userID, ops)
	})
}

func (s *RecordStore) fail(ctx context.Context, collection store.Collection, op, id string, err error) error {
	logger.FromContextOrDefault(ctx, s.logger).ErrorContext(ctx, "sqlite record store failure",
		slog.String("operation", op),
		slog.String("collection", string(collection)),
		slog.String("record_id", id),
		redact.Attr(err))
	return store.NewStoreError(collection, op, "sqlite", err)
}

// mapError turns constraint failures into store.ErrInvalidEntity. The driver
// reports them only through the message text.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "CHECK constraint failed") || strings.Contains(msg, "NOT NULL constraint failed") {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrRecordNotFound, err)
	}
	return err
}
