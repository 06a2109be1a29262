package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Refinement stages. A batch only ever moves forward through them.
const (
	RefinementStageHighlight = 1
	RefinementStageAnnotate  = 2
	RefinementStageSelect    = 3
)

// Validation errors for RefinementBatch
var (
	ErrEmptyBatchID        = errors.New("refinement batch ID cannot be empty")
	ErrEmptyClippings      = errors.New("refinement batch must contain at least one clipping")
	ErrEmptyClippingText   = errors.New("clipping text cannot be empty")
	ErrInvalidBatchStage   = errors.New("refinement stage must be between 1 and 3")
	ErrUnlockBeforeCreated = errors.New("unlock time cannot precede creation time")
)

// Clipping is a raw excerpt captured while reading.
type Clipping struct {
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
	Note        string `json:"note,omitempty"`
}

// Annotated reports whether the clipping carries a non-blank note.
func (c Clipping) Annotated() bool {
	return strings.TrimSpace(c.Note) != ""
}

// RefinementBatch is a cohort of clippings aging toward permanence.
type RefinementBatch struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Clippings []Clipping `json:"clippings"`
	Stage     int        `json:"stage"`
	CreatedAt time.Time  `json:"created_at"`
	UnlocksAt time.Time  `json:"unlocks_at"`
}

// NewRefinementBatch creates a stage-1 batch that unlocks at unlocksAt.
// Blank clippings are dropped; at least one must remain.
func NewRefinementBatch(
	clippings []Clipping,
	source string,
	now time.Time,
	unlocksAt time.Time,
) (*RefinementBatch, error) {
	kept := make([]Clipping, 0, len(clippings))
	for _, c := range clippings {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		kept = append(kept, Clipping{Text: text})
	}

	batch := &RefinementBatch{
		ID:        NewID(now),
		Source:    source,
		Clippings: kept,
		Stage:     RefinementStageHighlight,
		CreatedAt: now.UTC(),
		UnlocksAt: unlocksAt.UTC(),
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	return batch, nil
}

// Validate checks the batch invariants.
func (b *RefinementBatch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyBatchID)
	}

	if len(b.Clippings) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyClippings)
	}

	for i, c := range b.Clippings {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w: clipping %d: %w", ErrValidation, i, ErrEmptyClippingText)
		}
	}

	if b.Stage < RefinementStageHighlight || b.Stage > RefinementStageSelect {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidBatchStage)
	}

	if b.UnlocksAt.Before(b.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrUnlockBeforeCreated)
	}

	return nil
}

// IsLocked reports whether the batch still rejects interaction at now.
// The batch unlocks at exactly UnlocksAt.
func (b *RefinementBatch) IsLocked(now time.Time) bool {
	return now.Before(b.UnlocksAt)
}

// Clipping returns the clipping at index, or ErrNotFound if out of range.
func (b *RefinementBatch) Clipping(index int) (Clipping, error) {
	if index < 0 || index >= len(b.Clippings) {
		return Clipping{}, fmt.Errorf("%w: clipping index %d", ErrNotFound, index)
	}
	return b.Clippings[index], nil
}

// Clone returns a deep copy of the batch.
func (b *RefinementBatch) Clone() *RefinementBatch {
	c := *b
	c.Clippings = append([]Clipping(nil), b.Clippings...)
	return &c
}
