package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation error")
	// ErrParse marks natural language that could not be turned into an event.
	ErrParse = errors.New("parse error")
	// ErrNotFound marks an unknown event id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is matched by *ConflictError.
	ErrConflict = errors.New("conflict")
)

// ConflictError carries the structured report that drives the resolution flow.
type ConflictError struct {
	Report ConflictReport
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%q conflicts with %d existing event(s)", e.Report.Proposed.Summary, len(e.Report.Conflicts))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// BlockFailure records why one event of a multi-event operation was not committed.
type BlockFailure struct {
	Event     ProposedEvent `json:"event"`
	Reason    string        `json:"reason"`
	Conflicts []Conflict    `json:"conflicts,omitempty"`
}

// PartialFailure is returned when a multi-event operation committed some
// events but not all of them.
type PartialFailure struct {
	Created []Event
	Failed  []BlockFailure
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("created %d of %d events", len(e.Created), len(e.Created)+len(e.Failed))
}
