package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/phrazzld/metis/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "nested", "metis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db, "up"))
	return NewRecordStore(db, nil)
}

func TestRecordStore_PutGetDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.CollectionMemoryItems, "u1", "02", []byte(`{"n":2}`)))
	require.NoError(t, s.Put(ctx, store.CollectionMemoryItems, "u1", "01", []byte(`{"n":1}`)))
	require.NoError(t, s.Put(ctx, store.CollectionMemoryItems, "u2", "03", []byte(`{"n":3}`)))

	records, err := s.Get(ctx, store.CollectionMemoryItems, "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "01", records[0].ID)
	assert.JSONEq(t, `{"n":1}`, string(records[0].Data))

	require.NoError(t, s.Put(ctx, store.CollectionMemoryItems, "u1", "01", []byte(`{"n":10}`)))
	records, err = s.Get(ctx, store.CollectionMemoryItems, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":10}`, string(records[0].Data))

	require.NoError(t, s.Delete(ctx, store.CollectionMemoryItems, "u1", "01"))
	assert.ErrorIs(t, s.Delete(ctx, store.CollectionMemoryItems, "u1", "01"), store.ErrRecordNotFound)

	records, err = s.Get(ctx, store.CollectionRefinementBatches, "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordStore_Validation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "bogus", "u", "id", []byte(`{}`)), store.ErrInvalidCollection)
	assert.ErrorIs(t, s.Put(ctx, store.CollectionMemoryItems, "u", "", []byte(`{}`)), store.ErrInvalidEntity)
	assert.ErrorIs(t, s.Put(ctx, store.CollectionMemoryItems, "u", "id", []byte(`{not json`)), store.ErrInvalidEntity)
}

func TestRecordStore_ApplyBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.CollectionRefinementBatches, "u", "batch", []byte(`{}`)))

	err := s.ApplyBatch(ctx, "u", []store.Op{
		store.PutOp(store.CollectionMemoryItems, "i1", []byte(`{}`)),
		store.DeleteOp(store.CollectionRefinementBatches, "missing"),
	})
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	items, err := s.Get(ctx, store.CollectionMemoryItems, "u")
	require.NoError(t, err)
	assert.Empty(t, items, "failed batch must not leave partial writes")

	require.NoError(t, store.Apply(ctx, s, "u", []store.Op{
		store.PutOp(store.CollectionMemoryItems, "i1", []byte(`{}`)),
		store.PutOp(store.CollectionMemoryItems, "i2", []byte(`{}`)),
		store.DeleteOp(store.CollectionRefinementBatches, "batch"),
	}))

	items, err = s.Get(ctx, store.CollectionMemoryItems, "u")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	batches, err := s.Get(ctx, store.CollectionRefinementBatches, "u")
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestMigrateDownAndStatus(t *testing.T) {
	t.Parallel()
	db, err := Open(filepath.Join(t.TempDir(), "metis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, "up"))
	require.NoError(t, Migrate(ctx, db, "status"))
	require.NoError(t, Migrate(ctx, db, "down"))

	_, err = db.ExecContext(ctx, `SELECT 1 FROM records`)
	assert.Error(t, err)

	assert.Error(t, Migrate(ctx, db, "sideways"))
}
