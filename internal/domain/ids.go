package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lexically sortable identifier whose prefix encodes t, so
// items and batches order by creation time.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
