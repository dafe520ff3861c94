package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

// OverlapMinutes is min(end_a, end_b) - max(start_a, start_b) in minutes,
// rounded up so any positive intersection counts as at least one minute.
func OverlapMinutes(a, b calendar.Interval) int {
	d := a.Overlap(b)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// Conflicts returns the events in existing that overlap p, in the order given.
func Conflicts(existing []calendar.Event, p calendar.ProposedEvent) []calendar.Conflict {
	out := make([]calendar.Conflict, 0)
	for _, ev := range existing {
		if m := OverlapMinutes(ev.Interval(), p.Interval()); m > 0 {
			out = append(out, calendar.Conflict{Existing: ev, OverlapMinutes: m})
		}
	}
	return out
}

// Detect reads the events overlapping [p.Start, p.End) and reports conflicts.
// An empty Conflicts slice is the non-conflict path.
func Detect(ctx context.Context, r store.Reader, p calendar.ProposedEvent) (calendar.ConflictReport, error) {
	existing, err := r.Query(ctx, p.Start, p.End)
	if err != nil {
		return calendar.ConflictReport{}, fmt.Errorf("query overlapping events: %w", err)
	}
	return calendar.ConflictReport{Proposed: p, Conflicts: Conflicts(existing, p)}, nil
}
