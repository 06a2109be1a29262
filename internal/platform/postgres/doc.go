// Package postgres provides the PostgreSQL implementation of store.RecordStore.
// Records live in a single JSONB table keyed by (collection, user_id, id) and
// the schema is managed with embedded goose migrations.
package postgres
