package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Confidence is the learner's self-reported certainty when recalling an item.
type Confidence string

// Possible confidence values
const (
	ConfidenceConfident Confidence = "confident"
	ConfidenceUnsure    Confidence = "unsure"
	ConfidenceGuess     Confidence = "guess"
)

// Valid reports whether c is one of the known confidence labels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceConfident, ConfidenceUnsure, ConfidenceGuess:
		return true
	default:
		return false
	}
}

// ParseConfidence converts a label into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidConfidence, s)
	}
	return c, nil
}

// Status is the discrete review urgency of an item.
type Status string

// Possible status values
const (
	StatusHealthy   Status = "healthy"
	StatusNeedsCare Status = "needs-care"
	StatusUrgent    Status = "urgent"
)

// MemoryStage describes how consolidated an item is.
type MemoryStage string

// Possible memory stage values
const (
	StageShortTerm     MemoryStage = "short-term"
	StageConsolidating MemoryStage = "consolidating"
	StageLongTerm      MemoryStage = "long-term"
)

// Validation errors for MemoryItem
var (
	ErrEmptyItemID      = errors.New("memory item ID cannot be empty")
	ErrEmptyItemPrompt  = errors.New("memory item prompt cannot be empty")
	ErrEmptyItemReviews = errors.New("memory item must have at least one review")
)

// ReviewEvent is one recorded act of retrieval. The planting event that
// creates an item carries no confidence.
type ReviewEvent struct {
	At         time.Time  `json:"at"`
	Confidence Confidence `json:"confidence,omitempty"`
	Answer     string     `json:"answer,omitempty"`
}

// Schedule holds the fields derived from an item's strength and latest review.
// It is recomputed on every read and never treated as the source of truth.
type Schedule struct {
	IntervalDays    int         `json:"interval_days"`
	NextReviewDate  time.Time   `json:"next_review_date"`
	DaysUntilReview int         `json:"days_until_review"`
	Status          Status      `json:"status"`
	MemoryStage     MemoryStage `json:"memory_stage"`
}

// MemoryItem is a single piece of knowledge under long-term review.
type MemoryItem struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Prompt    string        `json:"prompt"`
	Source    string        `json:"source"`
	Answer    string        `json:"answer"`
	Strength  int           `json:"strength"`
	Reviews   []ReviewEvent `json:"reviews"`
	CreatedAt time.Time     `json:"created_at"`
	Schedule  Schedule      `json:"schedule"`
}

// NewMemoryItem creates an item with strength 1 and a first review at now.
// An empty title falls back to the prompt.
func NewMemoryItem(title, prompt, answer, source string, now time.Time) (*MemoryItem, error) {
	if strings.TrimSpace(title) == "" {
		title = prompt
	}

	item := &MemoryItem{
		ID:        NewID(now),
		Title:     title,
		Prompt:    prompt,
		Source:    source,
		Answer:    answer,
		Strength:  1,
		Reviews:   []ReviewEvent{{At: now.UTC()}},
		CreatedAt: now.UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks the item invariants.
func (m *MemoryItem) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyItemID)
	}

	if strings.TrimSpace(m.Prompt) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyItemPrompt)
	}

	if len(m.Reviews) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyItemReviews)
	}

	return nil
}

// Normalize clamps strength to 1 and orders reviews by timestamp.
func (m *MemoryItem) Normalize() {
	if m.Strength < 1 {
		m.Strength = 1
	}
	sort.SliceStable(m.Reviews, func(i, j int) bool {
		return m.Reviews[i].At.Before(m.Reviews[j].At)
	})
}

// LastReview returns the most recent review time, or the zero time if the
// item has no reviews.
func (m *MemoryItem) LastReview() time.Time {
	var last time.Time
	for _, r := range m.Reviews {
		if r.At.After(last) {
			last = r.At
		}
	}
	return last
}

// Clone returns a deep copy of the item.
func (m *MemoryItem) Clone() *MemoryItem {
	c := *m
	c.Reviews = append([]ReviewEvent(nil), m.Reviews...)
	return &c
}
