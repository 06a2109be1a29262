package api

import (
	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/session"
)

// UpsertItemRequest defines the payload for creating or replacing a memory item.
type UpsertItemRequest struct {
	ID     string `json:"id"     validate:"max=64"`
	Title  string `json:"title"  validate:"max=500"`
	Prompt string `json:"prompt" validate:"required,max=10000"`
	Answer string `json:"answer" validate:"max=20000"`
	Source string `json:"source" validate:"max=500"`
}

// ReviewRequest defines the payload for recording a review.
type ReviewRequest struct {
	Confidence string `json:"confidence" validate:"required,oneof=confident unsure guess"`
	Answer     string `json:"answer"     validate:"max=20000"`
}

// OpenBatchRequest defines the payload for opening a refinement batch.
type OpenBatchRequest struct {
	Clippings []string `json:"clippings" validate:"required,min=1,dive,max=10000"`
	Source    string   `json:"source"    validate:"max=500"`
}

// AnnotateRequest defines the payload for annotating a clipping.
type AnnotateRequest struct {
	Note string `json:"note" validate:"required,max=10000"`
}

// FinalizeRequest defines the payload for finalizing a batch.
type FinalizeRequest struct {
	Selected []int `json:"selected" validate:"max=1000"`
}

// StartSessionRequest defines the payload for starting a learning session.
// A zero TotalMinutes uses the configured default.
type StartSessionRequest struct {
	Goal         string `json:"goal"          validate:"required,max=1000"`
	Source       string `json:"source"        validate:"max=500"`
	TotalMinutes int    `json:"total_minutes" validate:"gte=0,lte=600"`
}

// AdvanceSessionRequest carries the text written in the current stage.
type AdvanceSessionRequest struct {
	Input string `json:"input" validate:"max=50000"`
}

// ClippingRequest carries a clipping captured during a session.
type ClippingRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

// CompleteSessionRequest carries the final writing.
type CompleteSessionRequest struct {
	FinalWriting string `json:"final_writing" validate:"required,max=50000"`
}

// SessionResponse is returned by every session command.
type SessionResponse struct {
	Session    session.Snapshot        `json:"session"`
	Transition *session.Transition     `json:"transition,omitempty"`
	Events     []session.Event         `json:"events,omitempty"`
	Item       *domain.MemoryItem      `json:"item,omitempty"`
	Batch      *domain.RefinementBatch `json:"batch,omitempty"`
}

// FinalizeResponse lists the memory items created from a batch.
type FinalizeResponse struct {
	Items []*domain.MemoryItem `json:"items"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string `json:"status"`
}
