package calendar

import (
	"fmt"
	"math"
	"time"
)

// Event is a committed calendar entry.
type Event struct {
	ID      string    `json:"id"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
}

// Proposed strips the id.
func (e Event) Proposed() ProposedEvent {
	return ProposedEvent{Summary: e.Summary, Start: e.Start, End: e.End}
}

// Interval returns the half-open [Start, End) range of the event.
func (e Event) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

// ProposedEvent is an unsaved candidate awaiting conflict resolution.
type ProposedEvent struct {
	Summary string    `json:"summary"`
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
}

func (p ProposedEvent) Interval() Interval {
	return Interval{Start: p.Start, End: p.End}
}

func (p ProposedEvent) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Validate checks the fields every store backend requires.
func (p ProposedEvent) Validate() error {
	if p.Summary == "" {
		return fmt.Errorf("%w: summary is required", ErrValidation)
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	if !p.Start.Before(p.End) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	return nil
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlap returns the length of the intersection of two intervals, or zero.
func (iv Interval) Overlap(other Interval) time.Duration {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Overlap(other) > 0
}

// Conflict is one existing event overlapping a proposed event.
type Conflict struct {
	Existing       Event `json:"existing_event"`
	OverlapMinutes int   `json:"overlap_minutes"`
}

// ConflictReport is computed on demand and never persisted.
type ConflictReport struct {
	Proposed  ProposedEvent `json:"proposed_event"`
	Conflicts []Conflict    `json:"conflicts"`
}

func (r ConflictReport) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Alternative moves the proposed event to a new slot.
type Alternative struct {
	Option string    `json:"option"`
	Start  time.Time `json:"start_time"`
	End    time.Time `json:"end_time"`
	Reason string    `json:"reason"`
}

// ExistingAlternative moves a conflicting event out of the way instead.
type ExistingAlternative struct {
	Option             string    `json:"option"`
	ExistingEventID    string    `json:"existing_event_id"`
	ExistingEventTitle string    `json:"existing_event_title"`
	NewStart           time.Time `json:"new_start_time"`
	NewEnd             time.Time `json:"new_end_time"`
	Reason             string    `json:"reason"`
}

// Alternatives is the combined answer of the slot finder.
type Alternatives struct {
	NewEvent      []Alternative         `json:"new_event_alternatives"`
	ExistingEvent []ExistingAlternative `json:"existing_event_alternatives"`
}

type Recommendation string

const (
	RecommendSplit  Recommendation = "split_task"
	RecommendSingle Recommendation = "single_block"
)

// Block is one piece of a split suggestion.
type Block struct {
	Summary       string    `json:"summary"`
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
	DurationHours float64   `json:"duration_hours"`
}

func NewBlock(summary string, start, end time.Time) Block {
	return Block{Summary: summary, Start: start, End: end, DurationHours: Hours(end.Sub(start))}
}

func (b Block) Proposed() ProposedEvent {
	return ProposedEvent{Summary: b.Summary, Start: b.Start, End: b.End}
}

type SplitSuggestion struct {
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"`
	Blocks         []Block        `json:"suggested_events"`
	RequestedHours float64        `json:"requested_hours"`
	TotalHours     float64        `json:"total_hours"`
}

// Hours converts a duration to hours rounded to two decimals.
func Hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
