package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/metis/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode   = "23505"
	checkViolationCode    = "23514"
	notNullViolationCode  = "23502"
	invalidJSONTextCode   = "22P02"
	serializationFailCode = "40001"
	undefinedTableCode    = "42P01"
)

// MapError maps a database error to a store error, wrapping the original.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrRecordNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case checkViolationCode:
			return fmt.Errorf("%w: check constraint violation (%s): %v",
				store.ErrInvalidEntity, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: not null violation (%s): %v",
				store.ErrInvalidEntity, pgErr.ColumnName, err)
		case invalidJSONTextCode:
			return fmt.Errorf("%w: invalid json: %v", store.ErrInvalidEntity, err)
		case serializationFailCode:
			return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
		case undefinedTableCode:
			return fmt.Errorf("records table missing, run migrations: %w", err)
		case uniqueViolationCode:
			return fmt.Errorf("%w: duplicate record: %v", store.ErrUpdateFailed, err)
		}
	}

	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CheckRowsAffected returns store.ErrRecordNotFound when result touched no rows.
func CheckRowsAffected(result sql.Result, what string) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrRecordNotFound, what)
	}
	return nil
}
