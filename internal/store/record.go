package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names a group of records belonging to one user.
type Collection string

// Known collections
const (
	CollectionMemoryItems       Collection = "memory_items"
	CollectionRefinementBatches Collection = "refinement_batches"
)

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionMemoryItems, CollectionRefinementBatches:
		return true
	default:
		return false
	}
}

// Record is a single opaque document in a collection.
type Record struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// RecordStore is the persistence contract of the core. Put overwrites any
// record with the same id; Delete of an unknown id returns ErrRecordNotFound.
// Get returns records ordered by id.
type RecordStore interface {
	Get(ctx context.Context, collection Collection, userID string) ([]Record, error)
	Put(ctx context.Context, collection Collection, userID, id string, data []byte) error
	Delete(ctx context.Context, collection Collection, userID, id string) error
}

// OpKind is the kind of a batched mutation.
type OpKind int

// Mutation kinds
const (
	OpPut OpKind = iota
	OpDelete
)

// Op is a single mutation applied as part of a batch.
type Op struct {
	Kind       OpKind
	Collection Collection
	ID         string
	Data       []byte
}

// PutOp builds a put mutation.
func PutOp(collection Collection, id string, data []byte) Op {
	return Op{Kind: OpPut, Collection: collection, ID: id, Data: data}
}

// DeleteOp builds a delete mutation.
func DeleteOp(collection Collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Batcher is implemented by stores that can apply several mutations for one
// user atomically.
type Batcher interface {
	ApplyBatch(ctx context.Context, userID string, ops []Op) error
}

// Apply runs ops against s, atomically when s implements Batcher and one by
// one otherwise. Sequential application stops at the first error.
func Apply(ctx context.Context, s RecordStore, userID string, ops []Op) error {
	if b, ok := s.(Batcher); ok {
		return b.ApplyBatch(ctx, userID, ops)
	}

	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpPut:
			err = s.Put(ctx, op.Collection, userID, op.ID, op.Data)
		case OpDelete:
			err = s.Delete(ctx, op.Collection, userID, op.ID)
		default:
			err = fmt.Errorf("%w: unknown op kind %d", ErrInvalidEntity, op.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateKey checks the common arguments of every store call.
func ValidateKey(collection Collection, userID string) error {
	if !collection.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	if userID == "" {
		return fmt.Errorf("%w: user id cannot be empty", ErrInvalidEntity)
	}
	return nil
}
