package refinement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/memory"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/store"
)

// Dwell periods, in days, before a batch unlocks again.
const (
	OpenDwellDays     = 1
	AnnotateDwellDays = 6
	SelectDwellDays   = 23
)

// Pipeline stages clippings through highlight, annotate and select before
// they become memory items. Every mutation of a batch is rejected with
// domain.ErrLocked until its UnlocksAt has passed, and leaves the batch
// unchanged on error.
type Pipeline interface {
	// Open creates a stage-1 batch that unlocks in one day
	Open(ctx context.Context, userID string, clippings []domain.Clipping, source string) (*domain.RefinementBatch, error)

	// ToggleHighlight flips the highlighted flag of one clipping in stage 1
	ToggleHighlight(ctx context.Context, userID, batchID string, index int) (*domain.RefinementBatch, error)

	// Annotate sets the note of a highlighted clipping in stage 2
	Annotate(ctx context.Context, userID, batchID string, index int, note string) (*domain.RefinementBatch, error)

	// Advance moves the batch to its next stage and locks it for that
	// stage's dwell period
	Advance(ctx context.Context, userID, batchID string) (*domain.RefinementBatch, error)

	// Finalize turns the selected clippings of a stage-3 batch into memory
	// items and deletes the batch, all or nothing
	Finalize(ctx context.Context, userID, batchID string, selected []int) ([]*domain.MemoryItem, error)

	// List returns the user's batches ordered by creation
	List(ctx context.Context, userID string) ([]*domain.RefinementBatch, error)

	// Get returns one batch
	Get(ctx context.Context, userID, batchID string) (*domain.RefinementBatch, error)

	// Discard deletes a batch without creating any items. It is allowed
	// while the batch is locked.
	Discard(ctx context.Context, userID, batchID string) error
}

// Option configures the pipeline.
type Option func(*pipelineImpl)

// WithNow sets the pipeline's time source.
func WithNow(now func() time.Time) Option {
	return func(p *pipelineImpl) {
		if now != nil {
			p.now = now
		}
	}
}

var _ Pipeline = (*pipelineImpl)(nil)

type pipelineImpl struct {
	records store.RecordStore
	items   memory.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline creates a Pipeline storing batches in records and committing
// finalized clippings through items.
func NewPipeline(records store.RecordStore, items memory.Service, logger *slog.Logger, opts ...Option) Pipeline {
	if records == nil {
		panic("records cannot be nil")
	}
	if items == nil {
		panic("items cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &pipelineImpl{
		records: records,
		items:   items,
		logger:  logger.With(slog.String("component", "refinement_pipeline")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open implements Pipeline.
func (p *pipelineImpl) Open(
	ctx context.Context,
	userID string,
	clippings []domain.Clipping,
	source string,
) (*domain.RefinementBatch, error) {
	now := p.now().UTC()
	batch, err := domain.NewRefinementBatch(clippings, strings.TrimSpace(source), now, now.AddDate(0, 0, OpenDwellDays))
	if err != nil {
		return nil, err
	}

	if err := p.save(ctx, userID, batch); err != nil {
		return nil, err
	}

	p.log(ctx).InfoContext(ctx, "refinement batch opened",
		slog.String("user_id", userID),
		slog.String("batch_id", batch.ID),
		slog.Int("clippings", len(batch.Clippings)),
		slog.Time("unlocks_at", batch.UnlocksAt))
	return batch, nil
}

// ToggleHighlight implements Pipeline.
func (p *pipelineImpl) ToggleHighlight(
	ctx context.Context,
	userID, batchID string,
	index int,
) (*domain.RefinementBatch, error) {
	batch, err := p.load(ctx, userID, batchID, domain.RefinementStageHighlight)
	if err != nil {
		return nil, err
	}

	c, err := batch.Clipping(index)
	if err != nil {
		return nil, err
	}
	c.Highlighted = !c.Highlighted
	batch.Clippings[index] = c

	if err := p.save(ctx, userID, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Annotate implements Pipeline.
func (p *pipelineImpl) Annotate(
	ctx context.Context,
	userID, batchID string,
	index int,
	note string,
) (*domain.RefinementBatch, error) {
	batch, err := p.load(ctx, userID, batchID, domain.RefinementStageAnnotate)
	if err != nil {
		return nil, err
	}

	c, err := batch.Clipping(index)
	if err != nil {
		return nil, err
	}
	if !c.Highlighted {
		return nil, fmt.Errorf("%w: clipping %d", domain.ErrNotHighlighted, index)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note cannot be empty", domain.ErrValidation)
	}
	c.Note = note
	batch.Clippings[index] = c

	if err := p.save(ctx, userID, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Advance implements Pipeline. The next unlock is counted from now, which
// is never earlier than the current unlock time.
func (p *pipelineImpl) Advance(ctx context.Context, userID, batchID string) (*domain.RefinementBatch, error) {
	batch, err := p.load(ctx, userID, batchID, 0)
	if err != nil {
		return nil, err
	}

	var dwell int
	switch batch.Stage {
	case domain.RefinementStageHighlight:
		dwell = AnnotateDwellDays
	case domain.RefinementStageAnnotate:
		dwell = SelectDwellDays
	default:
		return nil, fmt.Errorf("%w: batch is in its final stage, finalize it instead", domain.ErrInvalidStage)
	}

	now := p.now().UTC()
	batch.Stage++
	batch.UnlocksAt = now.AddDate(0, 0, dwell)

	if err := p.save(ctx, userID, batch); err != nil {
		return nil, err
	}

	p.log(ctx).InfoContext(ctx, "refinement batch advanced",
		slog.String("user_id", userID),
		slog.String("batch_id", batch.ID),
		slog.Int("stage", batch.Stage),
		slog.Time("unlocks_at", batch.UnlocksAt))
	return batch, nil
}

// Finalize implements Pipeline.
func (p *pipelineImpl) Finalize(
	ctx context.Context,
	userID, batchID string,
	selected []int,
) ([]*domain.MemoryItem, error) {
	log := p.log(ctx)

	batch, err := p.load(ctx, userID, batchID, domain.RefinementStageSelect)
	if err != nil {
		return nil, err
	}

	indexes, err := selection(batch, selected)
	if err != nil {
		log.WarnContext(ctx, "invalid refinement selection",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()))
		return nil, err
	}

	now := p.now()
	items := make([]*domain.MemoryItem, 0, len(indexes))
	ops := make([]store.Op, 0, len(indexes)+1)
	for _, i := range indexes {
		c := batch.Clippings[i]
		item, err := domain.NewMemoryItem(c.Text, c.Text, c.Note, batch.Source, now)
		if err != nil {
			return nil, err
		}
		op, err := p.items.ItemOp(item)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		ops = append(ops, op)
	}
	ops = append(ops, store.DeleteOp(store.CollectionRefinementBatches, batch.ID))

	if err := store.Apply(ctx, p.records, userID, ops); err != nil {
		log.ErrorContext(ctx, "failed to finalize refinement batch",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("batch_id", batchID))
		return nil, fmt.Errorf("failed to finalize refinement batch: %w", err)
	}

	log.InfoContext(ctx, "refinement batch finalized",
		slog.String("user_id", userID),
		slog.String("batch_id", batchID),
		slog.Int("items_created", len(items)))
	return items, nil
}

// List implements Pipeline.
func (p *pipelineImpl) List(ctx context.Context, userID string) ([]*domain.RefinementBatch, error) {
	return p.all(ctx, userID)
}

// Get implements Pipeline.
func (p *pipelineImpl) Get(ctx context.Context, userID, batchID string) (*domain.RefinementBatch, error) {
	return p.find(ctx, userID, batchID)
}

// Discard implements Pipeline.
func (p *pipelineImpl) Discard(ctx context.Context, userID, batchID string) error {
	if _, err := p.find(ctx, userID, batchID); err != nil {
		return err
	}

	if err := p.records.Delete(ctx, store.CollectionRefinementBatches, userID, batchID); err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: refinement batch %q", domain.ErrNotFound, batchID)
		}
		return fmt.Errorf("failed to delete refinement batch: %w", err)
	}

	p.log(ctx).InfoContext(ctx, "refinement batch discarded",
		slog.String("user_id", userID),
		slog.String("batch_id", batchID))
	return nil
}

// load fetches a batch for mutation, checking that it is unlocked and, if
// stage is non-zero, that it is in that stage.
func (p *pipelineImpl) load(ctx context.Context, userID, batchID string, stage int) (*domain.RefinementBatch, error) {
	batch, err := p.find(ctx, userID, batchID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	if batch.IsLocked(now) {
		return nil, fmt.Errorf("%w: unlocks at %s", domain.ErrLocked, batch.UnlocksAt.Format(time.RFC3339))
	}
	if stage != 0 && batch.Stage != stage {
		return nil, fmt.Errorf("%w: operation requires stage %d, batch is in stage %d",
			domain.ErrInvalidStage, stage, batch.Stage)
	}
	return batch, nil
}

func (p *pipelineImpl) find(ctx context.Context, userID, batchID string) (*domain.RefinementBatch, error) {
	batches, err := p.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range batches {
		if b.ID == batchID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: refinement batch %q", domain.ErrNotFound, batchID)
}

func (p *pipelineImpl) all(ctx context.Context, userID string) ([]*domain.RefinementBatch, error) {
	log := p.log(ctx)

	records, err := p.records.Get(ctx, store.CollectionRefinementBatches, userID)
	if err != nil {
		log.ErrorContext(ctx, "failed to load refinement batches",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return nil, fmt.Errorf("failed to load refinement batches: %w", err)
	}

	batches := make([]*domain.RefinementBatch, 0, len(records))
	for _, rec := range records {
		var b domain.RefinementBatch
		if err := json.Unmarshal(rec.Data, &b); err != nil {
			log.WarnContext(ctx, "skipping unreadable refinement batch",
				slog.String("error", err.Error()),
				slog.String("batch_id", rec.ID))
			continue
		}
		if b.ID == "" {
			b.ID = rec.ID
		}
		if err := b.Validate(); err != nil {
			log.WarnContext(ctx, "skipping invalid refinement batch",
				slog.String("error", err.Error()),
				slog.String("batch_id", rec.ID))
			continue
		}
		batches = append(batches, &b)
	}
	return batches, nil
}

func (p *pipelineImpl) save(ctx context.Context, userID string, batch *domain.RefinementBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode refinement batch: %w", err)
	}
	if err := p.records.Put(ctx, store.CollectionRefinementBatches, userID, batch.ID, data); err != nil {
		p.log(ctx).ErrorContext(ctx, "failed to store refinement batch",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("batch_id", batch.ID))
		return fmt.Errorf("failed to store refinement batch: %w", err)
	}
	return nil
}

func (p *pipelineImpl) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, p.logger)
}

// selection validates the chosen clipping indexes and returns them sorted
// without duplicates.
func selection(batch *domain.RefinementBatch, selected []int) ([]int, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no clippings selected", domain.ErrInvalidSelection)
	}

	indexes := slices.Clone(selected)
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	for _, i := range indexes {
		c, err := batch.Clipping(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSelection, err)
		}
		if !c.Highlighted {
			return nil, fmt.Errorf("%w: clipping %d is not highlighted", domain.ErrInvalidSelection, i)
		}
		if !c.Annotated() {
			return nil, fmt.Errorf("%w: clipping %d has no note", domain.ErrInvalidSelection, i)
		}
	}
	return indexes, nil
}
