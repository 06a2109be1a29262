// Package memstore provides a process-local store.RecordStore. It backs the
// default configuration and the service tests.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/phrazzld/metis/internal/store"
)

type key struct {
	collection store.Collection
	userID     string
}

// Store keeps records in memory. The zero value is not usable; call New.
type Store struct {
	mu   sync.RWMutex
	data map[key]map[string][]byte
}

var (
	_ store.RecordStore = (*Store)(nil)
	_ store.Batcher     = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[key]map[string][]byte)}
}

// Get implements store.RecordStore.
func (s *Store) Get(_ context.Context, collection store.Collection, userID string) ([]store.Record, error) {
	if err := store.ValidateKey(collection, userID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[key{collection, userID}]
	ids := slices.Sorted(maps.Keys(bucket))

	records := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, store.Record{ID: id, Data: slices.Clone(bucket[id])})
	}
	return records, nil
}

// Put implements store.RecordStore.
func (s *Store) Put(_ context.Context, collection store.Collection, userID, id string, data []byte) error {
	if err := validatePut(collection, userID, id, data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, userID, id, data)
	return nil
}

// Delete implements store.RecordStore.
func (s *Store) Delete(_ context.Context, collection store.Collection, userID, id string) error {
	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(collection, userID, id)
}

// ApplyBatch implements store.Batcher. Every op is validated before any is
// applied, and a failing delete restores the previous state.
func (s *Store) ApplyBatch(_ context.Context, userID string, ops []store.Op) error {
	for _, op := range ops {
		var err error
		if op.Kind == store.OpPut {
			err = validatePut(op.Collection, userID, op.ID, op.Data)
		} else {
			err = store.ValidateKey(op.Collection, userID)
		}
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot(userID)
	for _, op := range ops {
		var err error
		switch op.Kind {
		case store.OpPut:
			s.put(op.Collection, userID, op.ID, op.Data)
		case store.OpDelete:
			err = s.delete(op.Collection, userID, op.ID)
		default:
			err = fmt.Errorf("%w: unknown op kind %d", store.ErrInvalidEntity, op.Kind)
		}
		if err != nil {
			s.restore(userID, snapshot)
			return fmt.Errorf("%w: %w", store.ErrTransactionFailed, err)
		}
	}
	return nil
}

func (s *Store) put(collection store.Collection, userID, id string, data []byte) {
	k := key{collection, userID}
	bucket, ok := s.data[k]
	if !ok {
		bucket = make(map[string][]byte)
		s.data[k] = bucket
	}
	bucket[id] = slices.Clone(data)
}

func (s *Store) delete(collection store.Collection, userID, id string) error {
	bucket := s.data[key{collection, userID}]
	if _, ok := bucket[id]; !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrRecordNotFound, collection, id)
	}
	delete(bucket, id)
	return nil
}

func (s *Store) snapshot(userID string) map[key]map[string][]byte {
	out := make(map[key]map[string][]byte)
	for k, bucket := range s.data {
		if k.userID == userID {
			out[k] = maps.Clone(bucket)
		}
	}
	return out
}

func (s *Store) restore(userID string, snapshot map[key]map[string][]byte) {
	for k := range s.data {
		if k.userID == userID {
			delete(s.data, k)
		}
	}
	maps.Copy(s.data, snapshot)
}

func validatePut(collection store.Collection, userID, id string, data []byte) error {
	if err := store.ValidateKey(collection, userID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: record id cannot be empty", store.ErrInvalidEntity)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: record data cannot be empty", store.ErrInvalidEntity)
	}
	return nil
}
