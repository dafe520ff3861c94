// Package slots searches the calendar for free time around a requested slot.
package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Policy bounds the search. DayStart and DayEnd are offsets from local
// midnight delimiting the working window.
type Policy struct {
	DayStart        time.Duration
	DayEnd          time.Duration
	Step            time.Duration
	Horizon         time.Duration
	MaxAlternatives int
	MaxPerExisting  int
}

func DefaultPolicy() Policy {
	return Policy{
		DayStart:        8 * time.Hour,
		DayEnd:          22 * time.Hour,
		Step:            15 * time.Minute,
		Horizon:         7 * 24 * time.Hour,
		MaxAlternatives: 3,
		MaxPerExisting:  2,
	}
}

type Finder struct {
	policy Policy
	loc    *time.Location
}

func NewFinder(policy Policy, loc *time.Location) *Finder {
	if loc == nil {
		loc = time.UTC
	}
	return &Finder{policy: policy, loc: loc}
}

func (f *Finder) Policy() Policy { return f.policy }

func (f *Finder) Location() *time.Location { return f.loc }

// SearchRange is the window of stored events the finder needs to see when
// looking for alternatives to p.
func (f *Finder) SearchRange(p calendar.ProposedEvent) (from, to time.Time) {
	return p.Start.Add(-f.policy.Horizon), p.End.Add(f.policy.Horizon)
}

// ExistingSearchRange widens [from, to) so it also covers the window
// ForExisting searches around each conflicting event.
func (f *Finder) ExistingSearchRange(from, to time.Time, conflicts []calendar.Conflict) (time.Time, time.Time) {
	for _, c := range conflicts {
		if start := c.Existing.Start.Add(-f.policy.Horizon); start.Before(from) {
			from = start
		}
		if end := c.Existing.End.Add(f.policy.Horizon); end.After(to) {
			to = end
		}
	}
	return from, to
}

// ForProposed returns up to MaxAlternatives slots of p's duration that avoid
// every event in existing, nearest to the requested start first.
func (f *Finder) ForProposed(existing []calendar.Event, p calendar.ProposedEvent, now time.Time) []calendar.Alternative {
	busy := intervals(existing)
	out := make([]calendar.Alternative, 0, f.policy.MaxAlternatives)
	for _, iv := range f.search(busy, p.Interval(), now, f.policy.MaxAlternatives) {
		out = append(out, calendar.Alternative{
			Option: fmt.Sprintf("Option %d", len(out)+1),
			Start:  iv.Start,
			End:    iv.End,
			Reason: f.reason(p.Start, iv.Start),
		})
	}
	return out
}

// ForExisting proposes new times for each conflicting event so the proposed
// event can keep its slot. A moved event must avoid the rest of the calendar
// and the proposed event itself.
func (f *Finder) ForExisting(existing []calendar.Event, p calendar.ProposedEvent, conflicts []calendar.Conflict, now time.Time) []calendar.ExistingAlternative {
	out := make([]calendar.ExistingAlternative, 0)
	for _, c := range conflicts {
		busy := make([]calendar.Interval, 0, len(existing)+1)
		for _, ev := range existing {
			if ev.ID == c.Existing.ID {
				continue
			}
			busy = append(busy, ev.Interval())
		}
		busy = append(busy, p.Interval())

		for _, iv := range f.search(busy, c.Existing.Interval(), now, f.policy.MaxPerExisting) {
			out = append(out, calendar.ExistingAlternative{
				Option:             fmt.Sprintf("Move %s", c.Existing.Summary),
				ExistingEventID:    c.Existing.ID,
				ExistingEventTitle: c.Existing.Summary,
				NewStart:           iv.Start,
				NewEnd:             iv.End,
				Reason:             f.reason(c.Existing.Start, iv.Start),
			})
		}
	}
	return out
}

// search steps outward from want in both directions. At each distance the
// same-day candidate wins, then the earlier one.
func (f *Finder) search(busy []calendar.Interval, want calendar.Interval, now time.Time, limit int) []calendar.Interval {
	if limit <= 0 || f.policy.Step <= 0 {
		return nil
	}
	d := want.Duration()
	chosen := make([]calendar.Interval, 0, limit)

	for off := f.policy.Step; off <= f.policy.Horizon && len(chosen) < limit; off += f.policy.Step {
		cands := []calendar.Interval{
			{Start: want.Start.Add(-off), End: want.Start.Add(-off + d)},
			{Start: want.Start.Add(off), End: want.Start.Add(off + d)},
		}
		sort.SliceStable(cands, func(i, j int) bool {
			si := calendar.SameDay(want.Start.In(f.loc), cands[i].Start)
			sj := calendar.SameDay(want.Start.In(f.loc), cands[j].Start)
			if si != sj {
				return si
			}
			return cands[i].Start.Before(cands[j].Start)
		})
		for _, c := range cands {
			if len(chosen) >= limit {
				break
			}
			if c.Start.Before(now) || !f.inWindow(c) || overlapsAny(c, busy) || overlapsAny(c, chosen) {
				continue
			}
			chosen = append(chosen, c)
		}
	}
	return chosen
}

func (f *Finder) inWindow(iv calendar.Interval) bool {
	start := iv.Start.In(f.loc)
	day := calendar.StartOfDay(start)
	return !start.Before(day.Add(f.policy.DayStart)) && !iv.End.After(day.Add(f.policy.DayEnd))
}

func (f *Finder) reason(requested, chosen time.Time) string {
	requested, chosen = requested.In(f.loc), chosen.In(f.loc)
	switch {
	case calendar.SameDay(requested, chosen) && chosen.After(requested):
		return "next available slot same day"
	case calendar.SameDay(requested, chosen):
		return "earlier slot same day"
	default:
		return fmt.Sprintf("nearest free slot on %s", chosen.Format("Mon Jan 2"))
	}
}

// FreeIntervals returns the gaps between busy events inside the working
// window of every day touching [from, to), in chronological order.
func (f *Finder) FreeIntervals(existing []calendar.Event, from, to time.Time) []calendar.Interval {
	busy := intervals(existing)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	out := make([]calendar.Interval, 0)
	for day := calendar.StartOfDay(from.In(f.loc)); day.Before(to); day = day.AddDate(0, 0, 1) {
		ws, we := day.Add(f.policy.DayStart), day.Add(f.policy.DayEnd)
		if ws.Before(from) {
			ws = from
		}
		if we.After(to) {
			we = to
		}
		cursor := ws
		for _, b := range busy {
			if !b.End.After(cursor) || !b.Start.Before(we) {
				continue
			}
			if b.Start.After(cursor) {
				out = append(out, calendar.Interval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if we.After(cursor) {
			out = append(out, calendar.Interval{Start: cursor, End: we})
		}
	}
	return out
}

func intervals(events []calendar.Event) []calendar.Interval {
	out := make([]calendar.Interval, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Interval())
	}
	return out
}

func overlapsAny(iv calendar.Interval, others []calendar.Interval) bool {
	for _, o := range others {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}
