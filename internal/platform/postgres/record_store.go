package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/platform/migrations"
	"github.com/phrazzld/metis/internal/redact"
	"github.com/phrazzld/metis/internal/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DriverName is the database/sql driver used to open connections.
const DriverName = "pgx"

// Migrate runs a goose command against db with the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	return migrations.Run(ctx, db, "postgres", migrationFS, "migrations", command)
}

// RecordStore implements store.RecordStore on PostgreSQL.
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
		logger: logger.With(slog.String("component", "postgres_record_store")),
	}
}

// withTx returns a store bound to tx.
func (s *RecordStore) withTx(tx *sql.Tx) *RecordStore {
	return &RecordStore{db: tx, logger: s.logger}
}

// Get implements store.RecordStore.
func (s *RecordStore) Get(ctx context.Context, collection store.Collection, userID string) ([]store.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := store.ValidateKey(collection, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, data::text
		FROM records
		WHERE collection = $1 AND user_id = $2
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, string(collection), userID)
	if err != nil {
		log.ErrorContext(ctx, "failed to query records",
			slog.String("collection", string(collection)),
			redact.Attr(err))
		return nil, store.NewStoreError(collection, "get", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []store.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, store.NewStoreError(collection, "get", "scan failed", MapError(err))
		}
		records = append(records, store.Record{ID: id, Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(collection, "get", "row iteration failed", MapError(err))
	}

	log.DebugContext(ctx, "records loaded",
		slog.String("collection", string(collection)),
		slog.Int("count", len(records)))
	return records, nil
}

// Put implements store.RecordStore.
func (s *RecordStore) Put(ctx context.Context, collection store.Collection, userID, id string, data []byte) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}
	if id == "" || len(data) == 0 {
		return fmt.Errorf("%w: record id and data are required", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO records (collection, user_id, id, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (collection, user_id, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, string(collection), userID, id, string(data)); err != nil {
		log.ErrorContext(ctx, "failed to put record",
			slog.String("collection", string(collection)),
			slog.String("record_id", id),
			redact.Attr(err))
		return store.NewStoreError(collection, "put", "upsert failed",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}

	return nil
}

// Delete implements store.RecordStore.
func (s *RecordStore) Delete(ctx context.Context, collection store.Collection, userID, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}

	query := `DELETE FROM records WHERE collection = $1 AND user_id = $2 AND id = $3`
	result, err := s.db.ExecContext(ctx, query, string(collection), userID, id)
	if err != nil {
		log.ErrorContext(ctx, "failed to delete record",
			slog.String("collection", string(collection)),
			slog.String("record_id", id),
			redact.Attr(err))
		return store.NewStoreError(collection, "delete", "delete failed",
			fmt.Errorf("%w: %w", store.ErrDeleteFailed, MapError(err)))
	}

	return CheckRowsAffected(result, string(collection)+"/"+id)
}

// ApplyBatch implements store.Batcher inside a single transaction.
func (s *RecordStore) ApplyBatch(ctx context.Context, userID string, ops []store.Op) error {
	if s.pool == nil {
		return fmt.Errorf("%w: nested batch", store.ErrTransactionFailed)
	}

	return store.RunInTransaction(ctx, s.pool, func(ctx context.Context, tx *sql.Tx) error {
		return store.Apply(ctx, unbatched{s.withTx(tx)}, userID, ops)
	})
}

// unbatched hides ApplyBatch so store.Apply runs ops one by one on the tx.
type unbatched struct {
	store.RecordStore
}
