// Package parser turns free-text scheduling requests into proposed events.
package parser

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Parser resolves relative phrases against now, never the wall clock.
type Parser interface {
	Parse(ctx context.Context, text string, now time.Time) (calendar.ProposedEvent, error)
}

// DurationHints supplies learned durations when the text names an activity
// but not how long it takes.
type DurationHints interface {
	SuggestDuration(ctx context.Context, class, typ string) (time.Duration, bool)
}
