package memory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/domain/srs"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/session"
	"github.com/phrazzld/metis/internal/store"
)

// Challenge is what a learner is asked when a review starts.
type Challenge struct {
	ItemID   string            `json:"item_id"`
	Kind     srs.ChallengeKind `json:"kind"`
	Title    string            `json:"title"`
	Question string            `json:"question"`
	Source   string            `json:"source"`
	Strength int               `json:"strength"`
}

// Service manages a user's memory items. Every item it returns carries a
// schedule computed at call time; the stored snapshot is never trusted.
type Service interface {
	// Upsert validates item, assigns an id if it has none and stores it,
	// replacing any item with the same id
	Upsert(ctx context.Context, userID string, item *domain.MemoryItem) (*domain.MemoryItem, error)

	// Review records a review with the given confidence and returns the
	// updated item. Unknown ids fail with domain.ErrNotFound.
	Review(
		ctx context.Context,
		userID, itemID string,
		confidence domain.Confidence,
		answer string,
	) (*domain.MemoryItem, error)

	// List returns all items ordered by creation
	List(ctx context.Context, userID string) ([]*domain.MemoryItem, error)

	// Get returns one item
	Get(ctx context.Context, userID, itemID string) (*domain.MemoryItem, error)

	// Simulate projects the retention curve the item would follow after a
	// review with the given confidence. Nothing is stored.
	Simulate(
		ctx context.Context,
		userID, itemID string,
		confidence domain.Confidence,
	) (iter.Seq[srs.CurvePoint], error)

	// PlantFromSession turns a completed session into a new item whose id is
	// the session id. Planting the same session again returns the stored item.
	PlantFromSession(ctx context.Context, userID string, c *session.Completion) (*domain.MemoryItem, error)

	// Due returns the items whose review date has arrived, most overdue first
	Due(ctx context.Context, userID string) ([]*domain.MemoryItem, error)

	// StartReview returns the challenge to present for an item
	StartReview(ctx context.Context, userID, itemID string) (*Challenge, error)

	// ItemOp validates item and encodes it as a store mutation, so callers
	// can commit new items together with other records. The item is
	// normalized in place.
	ItemOp(item *domain.MemoryItem) (store.Op, error)
}

// KeyPointPrefix starts the prompt of items planted from a session.
const KeyPointPrefix = "[Key point]\n"

// ErrEmptyCompletion is returned when planting a session with no final writing.
var ErrEmptyCompletion = fmt.Errorf("%w: completion has no final writing", domain.ErrValidation)

// Option configures the service.
type Option func(*serviceImpl)

// WithNow sets the service's time source.
func WithNow(now func() time.Time) Option {
	return func(s *serviceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

var _ Service = (*serviceImpl)(nil)

type serviceImpl struct {
	records store.RecordStore
	decay   srs.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service over the given record store.
func NewService(records store.RecordStore, decay srs.Service, logger *slog.Logger, opts ...Option) Service {
	if records == nil {
		panic("records cannot be nil")
	}
	if decay == nil {
		panic("decay cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &serviceImpl{
		records: records,
		decay:   decay,
		logger:  logger.With(slog.String("component", "memory_service")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert implements Service.
func (s *serviceImpl) Upsert(ctx context.Context, userID string, item *domain.MemoryItem) (*domain.MemoryItem, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, srs.ErrNilItem)
	}

	now := s.now()
	next := item.Clone()
	if next.ID == "" {
		next.ID = domain.NewID(now)
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now.UTC()
	}

	if err := s.put(ctx, userID, next, now); err != nil {
		return nil, err
	}

	s.log(ctx).DebugContext(ctx, "memory item stored",
		slog.String("user_id", userID),
		slog.String("item_id", next.ID))
	return next, nil
}

// Review implements Service.
func (s *serviceImpl) Review(
	ctx context.Context,
	userID, itemID string,
	confidence domain.Confidence,
	answer string,
) (*domain.MemoryItem, error) {
	log := s.log(ctx)

	if !confidence.Valid() {
		log.WarnContext(ctx, "invalid review confidence",
			slog.String("item_id", itemID),
			slog.String("confidence", string(confidence)))
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidConfidence, confidence)
	}

	item, err := s.find(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reviewed, err := s.decay.ApplyReview(item, confidence, answer, now)
	if err != nil {
		return nil, fmt.Errorf("failed to apply review: %w", err)
	}
	if err := s.put(ctx, userID, reviewed, now); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "review recorded",
		slog.String("user_id", userID),
		slog.String("item_id", itemID),
		slog.String("confidence", string(confidence)),
		slog.Int("strength", reviewed.Strength),
		slog.Int("interval_days", reviewed.Schedule.IntervalDays))
	return reviewed, nil
}

// List implements Service.
func (s *serviceImpl) List(ctx context.Context, userID string) ([]*domain.MemoryItem, error) {
	return s.load(ctx, userID, s.now())
}

// Get implements Service.
func (s *serviceImpl) Get(ctx context.Context, userID, itemID string) (*domain.MemoryItem, error) {
	return s.find(ctx, userID, itemID)
}

// Simulate implements Service.
func (s *serviceImpl) Simulate(
	ctx context.Context,
	userID, itemID string,
	confidence domain.Confidence,
) (iter.Seq[srs.CurvePoint], error) {
	item, err := s.find(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	return s.decay.Simulate(item, confidence, s.now())
}

// PlantFromSession implements Service.
func (s *serviceImpl) PlantFromSession(
	ctx context.Context,
	userID string,
	c *session.Completion,
) (*domain.MemoryItem, error) {
	if c == nil || c.Inputs.FinalWriting == "" {
		return nil, ErrEmptyCompletion
	}

	if c.SessionID != "" {
		existing, err := s.find(ctx, userID, c.SessionID)
		switch {
		case err == nil:
			s.log(ctx).InfoContext(ctx, "session already planted",
				slog.String("user_id", userID),
				slog.String("session_id", c.SessionID))
			return existing, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	title := c.Inputs.Gap
	if title == "" {
		title = c.Goal
	}

	item, err := domain.NewMemoryItem(title, KeyPointPrefix+c.Inputs.Gap, c.Inputs.FinalWriting, c.Source, s.now())
	if err != nil {
		return nil, err
	}
	if c.SessionID != "" {
		item.ID = c.SessionID
	}

	planted, err := s.Upsert(ctx, userID, item)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "session planted as memory item",
		slog.String("user_id", userID),
		slog.String("session_id", c.SessionID),
		slog.String("item_id", planted.ID))
	return planted, nil
}

// Due implements Service.
func (s *serviceImpl) Due(ctx context.Context, userID string) ([]*domain.MemoryItem, error) {
	items, err := s.load(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	due := make([]*domain.MemoryItem, 0, len(items))
	for _, item := range items {
		if item.Schedule.DaysUntilReview <= 0 {
			due = append(due, item)
		}
	}
	sortByUrgency(due)
	return due, nil
}

// StartReview implements Service.
func (s *serviceImpl) StartReview(ctx context.Context, userID, itemID string) (*Challenge, error) {
	item, err := s.find(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	return &Challenge{
		ItemID:   item.ID,
		Kind:     srs.ChallengeFor(item.Strength),
		Title:    item.Title,
		Question: item.Prompt,
		Source:   item.Source,
		Strength: item.Strength,
	}, nil
}

// ItemOp implements Service.
func (s *serviceImpl) ItemOp(item *domain.MemoryItem) (store.Op, error) {
	data, err := s.encode(item, s.now())
	if err != nil {
		return store.Op{}, err
	}
	return store.PutOp(store.CollectionMemoryItems, item.ID, data), nil
}

func (s *serviceImpl) put(ctx context.Context, userID string, item *domain.MemoryItem, now time.Time) error {
	data, err := s.encode(item, now)
	if err != nil {
		return err
	}

	if err := s.records.Put(ctx, store.CollectionMemoryItems, userID, item.ID, data); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to store memory item",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("item_id", item.ID))
		return fmt.Errorf("failed to store memory item: %w", err)
	}
	return nil
}

// encode normalizes and validates item, refreshes its schedule and
// serializes it.
func (s *serviceImpl) encode(item *domain.MemoryItem, now time.Time) ([]byte, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, srs.ErrNilItem)
	}
	item.Normalize()
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	item.Schedule = s.decay.Schedule(item, now)
	return encodeItem(item)
}

// load reads every item and projects its schedule as of now. Records that
// cannot be decoded are logged and skipped.
func (s *serviceImpl) load(ctx context.Context, userID string, now time.Time) ([]*domain.MemoryItem, error) {
	log := s.log(ctx)

	records, err := s.records.Get(ctx, store.CollectionMemoryItems, userID)
	if err != nil {
		log.ErrorContext(ctx, "failed to load memory items",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return nil, fmt.Errorf("failed to load memory items: %w", err)
	}

	items := make([]*domain.MemoryItem, 0, len(records))
	for _, rec := range records {
		item, err := decodeItem(rec)
		if err != nil {
			log.WarnContext(ctx, "skipping unreadable memory item",
				slog.String("error", err.Error()),
				slog.String("user_id", userID),
				slog.String("item_id", rec.ID))
			continue
		}
		item.Schedule = s.decay.Schedule(item, now)
		items = append(items, item)
	}
	return items, nil
}

func (s *serviceImpl) find(ctx context.Context, userID, itemID string) (*domain.MemoryItem, error) {
	items, err := s.load(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == itemID {
			return item, nil
		}
	}

	s.log(ctx).DebugContext(ctx, "memory item not found",
		slog.String("user_id", userID),
		slog.String("item_id", itemID))
	return nil, fmt.Errorf("%w: memory item %q", domain.ErrNotFound, itemID)
}

func (s *serviceImpl) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, s.logger)
}
