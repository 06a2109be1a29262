package session

import (
	"sync"
	"time"

	"github.com/phrazzld/metis/internal/domain"
)

// EventKind classifies an outbound session event.
type EventKind string

// Event kinds.
const (
	EventStageEntered    EventKind = "stage_entered"
	EventTick            EventKind = "tick"
	EventStageExpired    EventKind = "stage_expired"
	EventNotice          EventKind = "notice"
	EventComparisonReady EventKind = "comparison_ready"
	EventCompleted       EventKind = "completed"
	EventCancelled       EventKind = "cancelled"
)

// Notices sent when reading or break stages end on their own.
const (
	NoticeReadingDone = "All reading cycles complete. Write down what you remember."
	NoticeBreakOver   = "Break over. Starting the next reading cycle."
)

// Event is a notification for the presentation layer.
type Event struct {
	Kind        EventKind `json:"kind"`
	Stage       StageKind `json:"stage"`
	Index       int       `json:"index"`
	SecondsLeft int       `json:"seconds_left"`
	Message     string    `json:"message,omitempty"`
}

// Sink receives a session's events. It may be called from the clock
// goroutine and must not call back into the session.
type Sink func(Event)

// Transition is the synchronous result of a session command.
type Transition struct {
	From       StageKind   `json:"from"`
	To         StageKind   `json:"to"`
	Index      int         `json:"index"`
	Comparison *Comparison `json:"comparison,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// Inputs holds the text captured when the learner leaves each writing stage.
type Inputs struct {
	Prediction   string `json:"prediction"`
	BrainDump    string `json:"brain_dump"`
	AIPrediction string `json:"ai_prediction"`
	Gap          string `json:"gap"`
	FinalWriting string `json:"final_writing"`
}

// field returns the input written when leaving stage k, or nil.
func (in *Inputs) field(k StageKind) *string {
	switch k {
	case StagePredict:
		return &in.Prediction
	case StageBrainDump:
		return &in.BrainDump
	case StageAIPrediction:
		return &in.AIPrediction
	case StageGapAnalysis:
		return &in.Gap
	case StageFinalWriting:
		return &in.FinalWriting
	}
	return nil
}

// Reply is one half of a comparison. Degraded replies carry a placeholder
// instead of generated text.
type Reply struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

// Comparison is the compare-and-reveal result.
type Comparison struct {
	BrainDump     string    `json:"brain_dump"`
	Feedback      Reply     `json:"feedback"`
	AIPrediction  string    `json:"ai_prediction"`
	ExpertSummary Reply     `json:"expert_summary"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Completion is emitted once when a session finishes. The host decides
// whether it becomes a memory item or a refinement batch of its clippings.
type Completion struct {
	SessionID    string            `json:"session_id"`
	Goal         string            `json:"goal"`
	Source       string            `json:"source"`
	TotalMinutes int               `json:"total_minutes"`
	Inputs       Inputs            `json:"inputs"`
	Clippings    []domain.Clipping `json:"clippings"`
	Comparison   *Comparison       `json:"comparison,omitempty"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// EventLog is a bounded Sink that keeps the most recent events until drained.
type EventLog struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewEventLog creates an EventLog holding at most limit events.
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = 64
	}
	return &EventLog{limit: limit}
}

// Sink records events. Tick events replace the previous tick so a slow
// reader sees the latest countdown value instead of a backlog.
func (l *EventLog) Sink(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Kind == EventTick && len(l.events) > 0 && l.events[len(l.events)-1].Kind == EventTick {
		l.events[len(l.events)-1] = e
		return
	}
	l.events = append(l.events, e)
	if over := len(l.events) - l.limit; over > 0 {
		l.events = append(l.events[:0], l.events[over:]...)
	}
}

// Drain returns the recorded events and clears the log.
func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.events
	l.events = nil
	return out
}
