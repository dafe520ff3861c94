// Package split decomposes long tasks into blocks that fit free time.
package split

import (
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/slots"
)

type Policy struct {
	MaxBlock  time.Duration
	MinBlock  time.Duration
	Break     time.Duration
	MaxBlocks int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxBlock:  2 * time.Hour,
		MinBlock:  30 * time.Minute,
		Break:     15 * time.Minute,
		MaxBlocks: 8,
	}
}

type Splitter struct {
	policy Policy
	finder *slots.Finder
}

func NewSplitter(policy Policy, finder *slots.Finder) *Splitter {
	return &Splitter{policy: policy, finder: finder}
}

// SearchRange is the window of stored events Suggest needs to see.
func (s *Splitter) SearchRange(p calendar.ProposedEvent, now time.Time) (from, to time.Time) {
	from = calendar.StartOfDay(p.Start.In(s.finder.Location()))
	anchor := p.Start
	if now.After(anchor) {
		anchor = now
	}
	return from, anchor.Add(s.finder.Policy().Horizon)
}

// Suggest proposes either the requested slot, one contiguous block on the
// same day, or a set of shorter blocks whose total covers the request.
func (s *Splitter) Suggest(existing []calendar.Event, p calendar.ProposedEvent, now time.Time) (calendar.SplitSuggestion, error) {
	if err := p.Validate(); err != nil {
		return calendar.SplitSuggestion{}, err
	}
	requested := p.Duration()
	out := calendar.SplitSuggestion{
		RequestedHours: calendar.Hours(requested),
		Blocks:         []calendar.Block{},
	}

	if !p.Start.Before(now) && !overlapsAny(p.Interval(), existing) {
		out.Recommendation = calendar.RecommendSingle
		out.Reason = "the requested time is free"
		out.Blocks = append(out.Blocks, calendar.NewBlock(p.Summary, p.Start, p.End))
		out.TotalHours = out.RequestedHours
		return out, nil
	}

	if iv, ok := s.sameDayBlock(existing, p, now); ok {
		out.Recommendation = calendar.RecommendSingle
		out.Reason = fmt.Sprintf("a free %s block is available on the same day", formatHours(requested))
		out.Blocks = append(out.Blocks, calendar.NewBlock(p.Summary, iv.Start, iv.Start.Add(requested)))
		out.TotalHours = out.RequestedHours
		return out, nil
	}

	from := p.Start
	if now.After(from) {
		from = now
	}
	free := s.finder.FreeIntervals(existing, from, from.Add(s.finder.Policy().Horizon))
	pieces, placed := s.greedy(free, requested)

	for i, iv := range pieces {
		summary := p.Summary
		if len(pieces) > 1 {
			summary = fmt.Sprintf("%s (part %d of %d)", p.Summary, i+1, len(pieces))
		}
		out.Blocks = append(out.Blocks, calendar.NewBlock(summary, iv.Start, iv.End))
	}
	out.TotalHours = calendar.Hours(placed)

	switch {
	case len(pieces) == 0:
		out.Recommendation = calendar.RecommendSplit
		out.Reason = "no free time found within the search horizon"
	case placed < requested:
		out.Recommendation = calendar.RecommendSplit
		out.Reason = fmt.Sprintf("only %s of %s could be placed within the search horizon", formatHours(placed), formatHours(requested))
	case len(pieces) == 1:
		out.Recommendation = calendar.RecommendSingle
		out.Reason = "the next free block fits the whole task"
	default:
		out.Recommendation = calendar.RecommendSplit
		out.Reason = fmt.Sprintf("no single free block fits %s; split into %d sessions", formatHours(requested), len(pieces))
	}
	return out, nil
}

// sameDayBlock finds the free interval on p's day, inside the working
// window, that fits the whole duration and starts nearest the request.
func (s *Splitter) sameDayBlock(existing []calendar.Event, p calendar.ProposedEvent, now time.Time) (calendar.Interval, bool) {
	day := calendar.StartOfDay(p.Start.In(s.finder.Location()))
	from := day
	if now.After(from) {
		from = now
	}
	to := day.AddDate(0, 0, 1)
	if !from.Before(to) {
		return calendar.Interval{}, false
	}

	var (
		best  calendar.Interval
		found bool
	)
	for _, iv := range s.finder.FreeIntervals(existing, from, to) {
		if iv.Duration() < p.Duration() {
			continue
		}
		// Slide the block as close to the requested start as the interval allows.
		start := p.Start
		if start.Before(iv.Start) {
			start = iv.Start
		}
		if latest := iv.End.Add(-p.Duration()); start.After(latest) {
			start = latest
		}
		cand := calendar.Interval{Start: start, End: start.Add(p.Duration())}
		if !found || absDuration(cand.Start.Sub(p.Start)) < absDuration(best.Start.Sub(p.Start)) {
			best, found = cand, true
		}
	}
	return best, found
}

// greedy fills free intervals in order. A remainder shorter than MinBlock is
// rounded up to MinBlock so the total never falls short of the request.
// MaxBlocks is a soft cap: it is raised to the number of MaxBlock sessions
// the request needs, and once it is reached blocks take whatever the free
// interval holds. Only running out of free time leaves a shortfall.
func (s *Splitter) greedy(free []calendar.Interval, requested time.Duration) ([]calendar.Interval, time.Duration) {
	var (
		out    []calendar.Interval
		placed time.Duration
	)
	limit := s.policy.MaxBlocks
	if s.policy.MaxBlock > 0 {
		limit = max(limit, int((requested+s.policy.MaxBlock-1)/s.policy.MaxBlock))
	}

	remaining := requested
	for _, iv := range free {
		cursor := iv.Start
		for remaining > 0 {
			avail := iv.End.Sub(cursor)
			if avail < s.policy.MinBlock || avail <= 0 {
				break
			}
			maxSize := s.policy.MaxBlock
			if len(out) >= limit-1 || maxSize <= 0 {
				maxSize = avail
			}
			size := min(maxSize, remaining, avail)
			if size < s.policy.MinBlock {
				size = s.policy.MinBlock
			}
			out = append(out, calendar.Interval{Start: cursor, End: cursor.Add(size)})
			placed += size
			remaining -= size
			cursor = cursor.Add(size + s.policy.Break)
		}
		if remaining <= 0 {
			break
		}
	}
	return out, placed
}

func overlapsAny(iv calendar.Interval, events []calendar.Event) bool {
	for _, ev := range events {
		if iv.Overlaps(ev.Interval()) {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func formatHours(d time.Duration) string {
	h := calendar.Hours(d)
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%g hours", h)
}
