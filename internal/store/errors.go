package store

import (
	"errors"
	"fmt"
)

// Errors shared by all RecordStore implementations.
var (
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidEntity marks a record rejected before it was written.
	ErrInvalidEntity = errors.New("invalid entity")

	ErrInvalidCollection = fmt.Errorf("%w: unknown collection", ErrInvalidEntity)
	ErrRecordNotFound    = fmt.Errorf("%w: record", ErrNotFound)

	ErrUpdateFailed      = errors.New("update failed")
	ErrDeleteFailed      = errors.New("delete failed")
	ErrTransactionFailed = errors.New("transaction failed")
)

// IsNotFoundError reports whether err is any kind of not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which collection and operation a backend failure came from.
type StoreError struct {
	Collection Collection
	Op         string
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Collection, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Collection, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the collection and operation it failed in.
func NewStoreError(collection Collection, op, message string, err error) *StoreError {
	return &StoreError{Collection: collection, Op: op, Message: message, Err: err}
}
