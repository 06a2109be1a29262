package srs

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/phrazzld/metis/internal/domain"
)

// Common errors
var (
	ErrNilItem = errors.New("memory item cannot be nil")
)

// Service defines the interface for decay model operations on memory items.
// Implementations never mutate the items they are given.
type Service interface {
	// Schedule computes the derived schedule of an item as of now
	Schedule(item *domain.MemoryItem, now time.Time) domain.Schedule

	// ApplyReview returns a copy of item with the review appended, strength
	// adjusted and schedule recomputed
	ApplyReview(
		item *domain.MemoryItem,
		confidence domain.Confidence,
		answer string,
		now time.Time,
	) (*domain.MemoryItem, error)

	// Simulate returns the retention curve the item would follow if it were
	// reviewed now with the given confidence
	Simulate(
		item *domain.MemoryItem,
		confidence domain.Confidence,
		now time.Time,
	) (iter.Seq[CurvePoint], error)

	// Curve returns the item's current retention curve from its last review
	Curve(item *domain.MemoryItem) iter.Seq[CurvePoint]
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new decay model service with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new decay model service with custom parameters
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// Schedule implements Service.
func (s *defaultService) Schedule(item *domain.MemoryItem, now time.Time) domain.Schedule {
	return Project(item.Strength, item.LastReview(), now, s.params.Location)
}

// ApplyReview implements Service.
func (s *defaultService) ApplyReview(
	item *domain.MemoryItem,
	confidence domain.Confidence,
	answer string,
	now time.Time,
) (*domain.MemoryItem, error) {
	if item == nil {
		return nil, ErrNilItem
	}

	if !confidence.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidConfidence, confidence)
	}

	next := item.Clone()
	next.Reviews = append(next.Reviews, domain.ReviewEvent{
		At:         now.UTC(),
		Confidence: confidence,
		Answer:     answer,
	})
	next.Strength = ApplyConfidence(item.Strength, confidence)
	next.Schedule = s.Schedule(next, now)

	return next, nil
}

// Simulate implements Service.
func (s *defaultService) Simulate(
	item *domain.MemoryItem,
	confidence domain.Confidence,
	now time.Time,
) (iter.Seq[CurvePoint], error) {
	if item == nil {
		return nil, ErrNilItem
	}

	if !confidence.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidConfidence, confidence)
	}

	strength := ApplyConfidence(item.Strength, confidence)
	return RetentionCurve(now, strength, s.params.HorizonDays), nil
}

// Curve implements Service.
func (s *defaultService) Curve(item *domain.MemoryItem) iter.Seq[CurvePoint] {
	return RetentionCurve(item.LastReview(), item.Strength, s.params.HorizonDays)
}
