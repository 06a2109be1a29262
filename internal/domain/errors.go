package domain

import "errors"

// Error taxonomy shared by the session, memory and refinement components.
// All of them are recoverable: the entity involved is left unchanged.
var (
	// ErrValidation is returned when required input is missing or malformed.
	// It is usually wrapped with a more specific message.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for an unknown item or batch id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStage is returned when a refinement operation is not allowed
	// in the batch's current stage.
	ErrInvalidStage = errors.New("operation not allowed in current stage")

	// ErrLocked is returned when a refinement batch has not reached its unlock time.
	ErrLocked = errors.New("refinement batch is locked")

	// ErrNotHighlighted is returned when annotating a clipping that was not highlighted.
	ErrNotHighlighted = errors.New("clipping is not highlighted")

	// ErrInvalidSelection is returned when finalizing with a clipping that is
	// out of range, not highlighted or has no note.
	ErrInvalidSelection = errors.New("invalid clipping selection")

	// ErrInvalidConfidence is returned when a review carries an unknown confidence label.
	ErrInvalidConfidence = errors.New("invalid confidence")
)

// IsStageDiscipline reports whether err is one of the refinement stage-discipline
// errors that a presentation layer renders as a disabled action.
func IsStageDiscipline(err error) bool {
	return errors.Is(err, ErrInvalidStage) ||
		errors.Is(err, ErrLocked) ||
		errors.Is(err, ErrNotHighlighted) ||
		errors.Is(err, ErrInvalidSelection)
}
