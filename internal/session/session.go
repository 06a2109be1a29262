package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/generation"
	"github.com/phrazzld/metis/internal/platform/logger"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned for commands on a completed or cancelled session.
	ErrClosed = fmt.Errorf("%w: session is closed", domain.ErrInvalidStage)

	// ErrAnalysisPending is returned while compare-and-reveal is generating.
	ErrAnalysisPending = fmt.Errorf("%w: comparison is still being generated", domain.ErrInvalidStage)
)

// DefaultGenerationTimeout bounds each compare-and-reveal request when
// Options.GenerationTimeout is unset.
const DefaultGenerationTimeout = 30 * time.Second

// MinBrainDumpLength is the shortest brain-dump, in characters, that is sent
// for feedback.
const MinBrainDumpLength = 10

// Fixed comparison texts.
const (
	FeedbackTooShort    = "There is too little here to analyze. Try writing down more of what you remember."
	FeedbackUnavailable = "[AI feedback unavailable] Feedback could not be generated right now. Refresh to try again or continue without it."
	SummaryUnavailable  = "[Expert summary unavailable] The summary could not be generated right now. Refresh to try again or continue without it."
)

// Options configures a new session.
type Options struct {
	Goal         string
	Source       string
	TotalMinutes int

	// Generator answers the compare-and-reveal prompts. Nil disables them.
	Generator         generation.TextGenerator
	GenerationTimeout time.Duration

	// NewTicker drives the stage countdowns. Nil uses real time.
	NewTicker TickerFunc
	Sink      Sink
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session runs one learning session through its stage plan. All methods are
// safe for concurrent use.
type Session struct {
	id        string
	goal      string
	source    string
	plan      Plan
	startedAt time.Time

	gen     generation.TextGenerator
	timeout time.Duration
	clock   *Clock
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	index       int
	epoch       uint64
	secondsLeft int
	inputs      Inputs
	clippings   []domain.Clipping
	comparison  *Comparison
	analyzing   bool
	closed      bool

	// completion is kept so repeated Complete calls return the same payload
	completion *Completion
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID          string            `json:"id"`
	Goal        string            `json:"goal"`
	Source      string            `json:"source"`
	Plan        Plan              `json:"plan"`
	Index       int               `json:"index"`
	Stage       Stage             `json:"stage"`
	SecondsLeft int               `json:"seconds_left"`
	Inputs      Inputs            `json:"inputs"`
	Clippings   []domain.Clipping `json:"clippings"`
	Comparison  *Comparison       `json:"comparison,omitempty"`
	Analyzing   bool              `json:"analyzing"`
	Closed      bool              `json:"closed"`
	StartedAt   time.Time         `json:"started_at"`
}

// Start creates a session for opts and enters its first stage.
func Start(ctx context.Context, opts Options) (*Session, Transition, error) {
	goal := strings.TrimSpace(opts.Goal)
	if goal == "" {
		return nil, Transition{}, fmt.Errorf("%w: learning goal is required", domain.ErrValidation)
	}

	s := &Session{
		goal:    goal,
		source:  strings.TrimSpace(opts.Source),
		plan:    BuildPlan(opts.TotalMinutes),
		gen:     opts.Generator,
		timeout: opts.GenerationTimeout,
		clock:   NewClock(opts.NewTicker),
		sink:    opts.Sink,
		now:     opts.Now,
	}
	if s.gen == nil {
		s.gen = generation.Disabled{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultGenerationTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.startedAt = s.now()
	s.id = domain.NewID(s.startedAt)

	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	s.logger = base.With(slog.String("component", "learning_session"), slog.String("session_id", s.id))

	log := logger.FromContextOrDefault(ctx, s.logger)
	if !SupportedMinutes(opts.TotalMinutes) {
		log.WarnContext(ctx, "unsupported session length, using fallback preset",
			slog.Int("requested_minutes", opts.TotalMinutes),
			slog.Int("total_minutes", s.plan.TotalMinutes))
	}
	log.InfoContext(ctx, "learning session started",
		slog.Int("total_minutes", s.plan.TotalMinutes),
		slog.Int("stages", len(s.plan.Stages)))

	s.mu.Lock()
	events := s.enterLocked(0)
	first := s.plan.Stages[0].Kind
	s.mu.Unlock()
	s.emit(events...)

	return s, Transition{From: first, To: first, Index: 0}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Advance records input for the current stage and moves to the next one.
// Entering compare-and-reveal blocks until both comparison replies are
// available. Advancing from final-writing completes the session.
func (s *Session) Advance(ctx context.Context, input string) (Transition, error) {
	s.mu.Lock()
	if t, ok := s.completedLocked(); ok {
		s.mu.Unlock()
		return t, nil
	}
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return Transition{}, err
	}

	from := s.plan.Stages[s.index].Kind
	if from == StageFinalWriting {
		s.mu.Unlock()
		return s.Complete(ctx, input)
	}

	if f := s.inputs.field(from); f != nil {
		*f = input
	}
	events := s.enterLocked(s.index + 1)
	t := Transition{From: from, To: s.plan.Stages[s.index].Kind, Index: s.index}

	if t.To != StageCompareAndReveal {
		s.mu.Unlock()
		s.emit(events...)
		return t, nil
	}

	s.analyzing = true
	epoch := s.epoch
	data := s.promptDataLocked()
	s.mu.Unlock()
	s.emit(events...)

	cmp, err := s.compare(ctx, epoch, data)
	if err != nil {
		return Transition{}, err
	}
	t.Comparison = cmp
	return t, nil
}

// RefreshComparison requests a new comparison. It is only available in the
// compare-and-reveal stage.
func (s *Session) RefreshComparison(ctx context.Context) (Transition, error) {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return Transition{}, err
	}
	stage := s.plan.Stages[s.index].Kind
	if stage != StageCompareAndReveal {
		s.mu.Unlock()
		return Transition{}, fmt.Errorf("%w: comparison can only be refreshed in %s, session is in %s",
			domain.ErrInvalidStage, StageCompareAndReveal, stage)
	}

	s.analyzing = true
	epoch := s.epoch
	index := s.index
	data := s.promptDataLocked()
	s.mu.Unlock()

	cmp, err := s.compare(ctx, epoch, data)
	if err != nil {
		return Transition{}, err
	}
	return Transition{From: stage, To: stage, Index: index, Comparison: cmp}, nil
}

// Complete finishes the session with the final writing. It fails with
// domain.ErrValidation outside final-writing or when finalText is blank, and
// the session stays where it is. Once completed, further calls return the
// original completion and ignore finalText, so a host that failed to save it
// can retry.
func (s *Session) Complete(ctx context.Context, finalText string) (Transition, error) {
	s.mu.Lock()
	if t, ok := s.completedLocked(); ok {
		s.mu.Unlock()
		return t, nil
	}
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return Transition{}, err
	}

	stage := s.plan.Stages[s.index].Kind
	if stage != StageFinalWriting {
		s.mu.Unlock()
		return Transition{}, fmt.Errorf("%w: session can only be completed from %s, session is in %s",
			domain.ErrValidation, StageFinalWriting, stage)
	}
	if strings.TrimSpace(finalText) == "" {
		s.mu.Unlock()
		return Transition{}, fmt.Errorf("%w: final writing cannot be empty", domain.ErrValidation)
	}

	s.inputs.FinalWriting = finalText
	s.closed = true
	s.epoch++
	s.clock.Cancel()

	completion := &Completion{
		SessionID:    s.id,
		Goal:         s.goal,
		Source:       s.source,
		TotalMinutes: s.plan.TotalMinutes,
		Inputs:       s.inputs,
		Clippings:    slices.Clone(s.clippings),
		Comparison:   cloneComparison(s.comparison),
		CompletedAt:  s.now(),
	}
	s.completion = completion
	index := s.index
	s.mu.Unlock()

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "learning session completed",
		slog.Int("clippings", len(completion.Clippings)))
	s.emit(Event{Kind: EventCompleted, Stage: stage, Index: index})

	return Transition{From: stage, To: stage, Index: index, Completion: completion.clone()}, nil
}

// completedLocked returns the transition of an already completed session.
func (s *Session) completedLocked() (Transition, bool) {
	if s.completion == nil {
		return Transition{}, false
	}
	return Transition{
		From:       StageFinalWriting,
		To:         StageFinalWriting,
		Index:      s.index,
		Completion: s.completion.clone(),
	}, true
}

// Cancel aborts the session, discarding everything captured so far. Replies
// still being generated are dropped when they arrive.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	s.clock.Cancel()
	s.inputs = Inputs{}
	s.clippings = nil
	s.comparison = nil
	e := Event{Kind: EventCancelled, Stage: s.plan.Stages[s.index].Kind, Index: s.index}
	s.mu.Unlock()

	s.logger.Info("learning session cancelled")
	s.emit(e)
}

// AddClipping collects a raw excerpt for the completion payload. Clippings
// may be added in any stage, including while the comparison is generating.
func (s *Session) AddClipping(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: clipping text cannot be empty", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.clippings = append(s.clippings, domain.Clipping{Text: text})
	return nil
}

// State returns a snapshot of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:          s.id,
		Goal:        s.goal,
		Source:      s.source,
		Plan:        Plan{TotalMinutes: s.plan.TotalMinutes, Stages: slices.Clone(s.plan.Stages)},
		Index:       s.index,
		Stage:       s.plan.Stages[s.index],
		SecondsLeft: s.secondsLeft,
		Inputs:      s.inputs,
		Clippings:   slices.Clone(s.clippings),
		Comparison:  cloneComparison(s.comparison),
		Analyzing:   s.analyzing,
		Closed:      s.closed,
		StartedAt:   s.startedAt,
	}
}

func (s *Session) checkOpenLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.analyzing {
		return ErrAnalysisPending
	}
	return nil
}

// enterLocked moves to stage i and starts its countdown. Callbacks from an
// earlier countdown are ignored once the epoch moves on.
func (s *Session) enterLocked(i int) []Event {
	s.index = i
	s.epoch++
	stage := s.plan.Stages[i]
	s.secondsLeft = stage.Seconds

	if stage.Timed() {
		epoch := s.epoch
		s.clock.Start(stage.Seconds,
			func(left int) { s.tick(epoch, left) },
			func() { s.expire(epoch) })
	} else {
		s.clock.Cancel()
	}

	return []Event{{Kind: EventStageEntered, Stage: stage.Kind, Index: i, SecondsLeft: stage.Seconds}}
}

func (s *Session) tick(epoch uint64, left int) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.secondsLeft = left
	e := Event{Kind: EventTick, Stage: s.plan.Stages[s.index].Kind, Index: s.index, SecondsLeft: left}
	s.mu.Unlock()

	s.emit(e)
}

// expire handles the end of a countdown. Writing stages wait for the
// learner; reading and break stages move on by themselves.
func (s *Session) expire(epoch uint64) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}

	kind := s.plan.Stages[s.index].Kind
	events := []Event{{Kind: EventStageExpired, Stage: kind, Index: s.index}}
	if kind.AutoAdvance() {
		var notice string
		switch {
		case kind == StageBreak:
			notice = NoticeBreakOver
		case s.plan.remainingReads(s.index) == 0:
			notice = NoticeReadingDone
		}
		if notice != "" {
			events = append(events, Event{Kind: EventNotice, Stage: kind, Index: s.index, Message: notice})
		}
		events = append(events, s.enterLocked(s.index+1)...)
	}
	s.mu.Unlock()

	s.emit(events...)
}

func (s *Session) promptDataLocked() generation.PromptData {
	return generation.PromptData{
		Goal:      s.goal,
		Source:    s.source,
		BrainDump: s.inputs.BrainDump,
	}
}

// compare generates both comparison replies and stores them unless the
// session was closed in the meantime.
func (s *Session) compare(ctx context.Context, epoch uint64, data generation.PromptData) (*Comparison, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	s.mu.Lock()
	aiPrediction := s.inputs.AIPrediction
	s.mu.Unlock()

	cmp := &Comparison{BrainDump: data.BrainDump, AIPrediction: aiPrediction}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		cmp.Feedback = s.feedback(gctx, log, data)
		return nil
	})
	g.Go(func() error {
		prompt, err := generation.ExpertSummaryPrompt(data)
		if err != nil {
			log.ErrorContext(ctx, "failed to render expert summary prompt", slog.String("error", err.Error()))
			cmp.ExpertSummary = Reply{Text: SummaryUnavailable, Degraded: true}
			return nil
		}
		cmp.ExpertSummary = s.ask(gctx, log, "expert_summary", prompt, SummaryUnavailable)
		return nil
	})
	_ = g.Wait()
	cmp.GeneratedAt = s.now()

	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		log.InfoContext(ctx, "discarding comparison for closed session")
		return nil, ErrClosed
	}
	s.analyzing = false
	s.comparison = cmp
	e := Event{Kind: EventComparisonReady, Stage: StageCompareAndReveal, Index: s.index}
	s.mu.Unlock()

	s.emit(e)
	return cloneComparison(cmp), nil
}

func (s *Session) feedback(ctx context.Context, log *slog.Logger, data generation.PromptData) Reply {
	if utf8.RuneCountInString(strings.TrimSpace(data.BrainDump)) < MinBrainDumpLength {
		return Reply{Text: FeedbackTooShort}
	}
	prompt, err := generation.FeedbackPrompt(data)
	if err != nil {
		log.ErrorContext(ctx, "failed to render feedback prompt", slog.String("error", err.Error()))
		return Reply{Text: FeedbackUnavailable, Degraded: true}
	}
	return s.ask(ctx, log, "feedback", prompt, FeedbackUnavailable)
}

// ask runs one generation request, giving up when ctx ends even if the
// generator does not.
func (s *Session) ask(ctx context.Context, log *slog.Logger, kind, prompt, placeholder string) Reply {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := s.gen.Generate(ctx, prompt)
		done <- result{text: text, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	if r.err == nil && strings.TrimSpace(r.text) == "" {
		r.err = generation.ErrInvalidResponse
	}
	if r.err != nil {
		level := slog.LevelWarn
		if errors.Is(r.err, generation.ErrDisabled) {
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "using placeholder for comparison reply",
			slog.String("reply", kind),
			slog.String("error", r.err.Error()))
		return Reply{Text: placeholder, Degraded: true}
	}
	return Reply{Text: strings.TrimSpace(r.text)}
}

func (s *Session) emit(events ...Event) {
	if s.sink == nil {
		return
	}
	for _, e := range events {
		s.sink(e)
	}
}

func cloneComparison(c *Comparison) *Comparison {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (c *Completion) clone() *Completion {
	cp := *c
	cp.Clippings = slices.Clone(c.Clippings)
	cp.Comparison = cloneComparison(c.Comparison)
	return &cp
}
