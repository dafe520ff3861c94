// Package scheduler runs the parse, check, resolve and commit flow.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/conflict"
	"github.com/MikeSquared-Agency/tempo/internal/parser"
	"github.com/MikeSquared-Agency/tempo/internal/slots"
	"github.com/MikeSquared-Agency/tempo/internal/split"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

const (
	SubjectEventCreated = "tempo.event.created"
	SubjectEventMoved   = "tempo.event.moved"
	SubjectEventDeleted = "tempo.event.deleted"
)

// Notifier publishes calendar changes. *hermes.Client satisfies it.
type Notifier interface {
	Publish(subject string, data any) error
}

type Service struct {
	events         store.Events
	parser         parser.Parser
	finder         *slots.Finder
	splitter       *split.Splitter
	notifier       Notifier
	suggestTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func New(events store.Events, p parser.Parser, finder *slots.Finder, splitter *split.Splitter, notifier Notifier, suggestTimeout time.Duration, logger *slog.Logger) *Service {
	if suggestTimeout <= 0 {
		suggestTimeout = 3 * time.Second
	}
	return &Service{
		events:         events,
		parser:         p,
		finder:         finder,
		splitter:       splitter,
		notifier:       notifier,
		suggestTimeout: suggestTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// SetClock replaces the time source used to resolve relative phrases.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now is the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Location() *time.Location {
	return s.finder.Location()
}

// Parse turns text into a proposed event without touching the store.
func (s *Service) Parse(ctx context.Context, text string) (calendar.ProposedEvent, error) {
	return s.parser.Parse(ctx, text, s.now())
}

// Schedule parses text and commits the event unless it conflicts.
func (s *Service) Schedule(ctx context.Context, text string) (calendar.Event, error) {
	p, err := s.Parse(ctx, text)
	if err != nil {
		return calendar.Event{}, err
	}
	return s.ScheduleAt(ctx, p)
}

// ScheduleAt commits p if nothing overlaps it. The conflict check and the
// insert run in one atomic store call so concurrent requests cannot both
// claim the same slot.
func (s *Service) ScheduleAt(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	if err := p.Validate(); err != nil {
		return calendar.Event{}, err
	}

	var created calendar.Event
	err := s.events.Atomic(ctx, func(tx store.Tx) error {
		report, err := conflict.Detect(ctx, tx, p)
		if err != nil {
			return err
		}
		if report.HasConflicts() {
			return &calendar.ConflictError{Report: report}
		}
		created, err = tx.Create(ctx, p)
		return err
	})
	if err != nil {
		return calendar.Event{}, err
	}

	s.logger.Info("event scheduled", "id", created.ID, "summary", created.Summary, "start", created.Start)
	s.publish(SubjectEventCreated, created)
	return created, nil
}

// Force commits p without checking for conflicts.
func (s *Service) Force(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	if err := p.Validate(); err != nil {
		return calendar.Event{}, err
	}
	created, err := s.events.Create(ctx, p)
	if err != nil {
		return calendar.Event{}, err
	}
	s.logger.Info("event force-scheduled", "id", created.ID, "summary", created.Summary)
	s.publish(SubjectEventCreated, created)
	return created, nil
}

// Alternatives suggests new slots for p and new times for the events it
// conflicts with. Failures and timeouts yield empty lists; only a malformed
// proposal is an error.
func (s *Service) Alternatives(ctx context.Context, p calendar.ProposedEvent, conflicts []calendar.Conflict) (calendar.Alternatives, error) {
	empty := calendar.Alternatives{
		NewEvent:      []calendar.Alternative{},
		ExistingEvent: []calendar.ExistingAlternative{},
	}
	if err := p.Validate(); err != nil {
		return empty, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.suggestTimeout)
	defer cancel()

	done := make(chan calendar.Alternatives, 1)
	go func() {
		alts, err := s.alternatives(ctx, p, conflicts)
		if err != nil {
			s.logger.Warn("alternative search failed", "error", err)
			alts = empty
		}
		done <- alts
	}()

	select {
	case alts := <-done:
		return alts, nil
	case <-ctx.Done():
		s.logger.Warn("alternative search timed out", "timeout", s.suggestTimeout)
		return empty, nil
	}
}

func (s *Service) alternatives(ctx context.Context, p calendar.ProposedEvent, conflicts []calendar.Conflict) (calendar.Alternatives, error) {
	from, to := s.finder.SearchRange(p)
	existing, err := s.events.Query(ctx, from, to)
	if err != nil {
		return calendar.Alternatives{}, fmt.Errorf("load calendar: %w", err)
	}

	// The stored calendar is authoritative; client-supplied conflicts only
	// matter if they still exist.
	current := conflict.Conflicts(existing, p)
	if len(conflicts) > 0 && len(current) == 0 {
		s.logger.Debug("supplied conflicts no longer present", "count", len(conflicts))
	}

	// A conflicting event may be searched further out than p is.
	if wideFrom, wideTo := s.finder.ExistingSearchRange(from, to, current); wideFrom.Before(from) || wideTo.After(to) {
		existing, err = s.events.Query(ctx, wideFrom, wideTo)
		if err != nil {
			return calendar.Alternatives{}, fmt.Errorf("load calendar: %w", err)
		}
	}

	now := s.now()
	return calendar.Alternatives{
		NewEvent:      s.finder.ForProposed(existing, p, now),
		ExistingEvent: s.finder.ForExisting(existing, p, current, now),
	}, nil
}

// MoveExisting moves an existing event and schedules p in the freed slot.
// Both happen or neither does.
func (s *Service) MoveExisting(ctx context.Context, existingID string, newStart, newEnd time.Time, p calendar.ProposedEvent) (calendar.Event, calendar.Event, error) {
	if err := p.Validate(); err != nil {
		return calendar.Event{}, calendar.Event{}, err
	}
	target := calendar.Interval{Start: newStart, End: newEnd}
	if !newStart.Before(newEnd) {
		return calendar.Event{}, calendar.Event{}, fmt.Errorf("%w: new_start_time must be before new_end_time", calendar.ErrValidation)
	}

	var moved, created calendar.Event
	err := s.events.Atomic(ctx, func(tx store.Tx) error {
		ev, err := tx.Get(ctx, existingID)
		if err != nil {
			return err
		}

		ev.Start, ev.End = newStart, newEnd
		if target.Overlaps(p.Interval()) {
			return &calendar.ConflictError{Report: calendar.ConflictReport{
				Proposed: p,
				Conflicts: []calendar.Conflict{{
					Existing:       ev,
					OverlapMinutes: conflict.OverlapMinutes(target, p.Interval()),
				}},
			}}
		}
		others, err := tx.Query(ctx, newStart, newEnd)
		if err != nil {
			return err
		}
		var blocking []calendar.Event
		for _, o := range others {
			if o.ID != existingID {
				blocking = append(blocking, o)
			}
		}
		if c := conflict.Conflicts(blocking, ev.Proposed()); len(c) > 0 {
			return &calendar.ConflictError{Report: calendar.ConflictReport{Proposed: ev.Proposed(), Conflicts: c}}
		}

		if moved, err = tx.Update(ctx, existingID, newStart, newEnd); err != nil {
			return err
		}

		report, err := conflict.Detect(ctx, tx, p)
		if err != nil {
			return err
		}
		if report.HasConflicts() {
			return &calendar.ConflictError{Report: report}
		}
		created, err = tx.Create(ctx, p)
		return err
	})
	if err != nil {
		return calendar.Event{}, calendar.Event{}, err
	}

	s.logger.Info("event moved to make room", "moved", moved.ID, "created", created.ID)
	s.publish(SubjectEventMoved, moved)
	s.publish(SubjectEventCreated, created)
	return moved, created, nil
}

// SuggestSplit proposes how to fit p into free time.
func (s *Service) SuggestSplit(ctx context.Context, p calendar.ProposedEvent) (calendar.SplitSuggestion, error) {
	if err := p.Validate(); err != nil {
		return calendar.SplitSuggestion{}, err
	}
	now := s.now()
	from, to := s.splitter.SearchRange(p, now)
	existing, err := s.events.Query(ctx, from, to)
	if err != nil {
		return calendar.SplitSuggestion{}, fmt.Errorf("load calendar: %w", err)
	}
	return s.splitter.Suggest(existing, p, now)
}

// ScheduleSplit commits each block with its own conflict check. The result
// always says exactly which blocks were created; if any block failed the
// error is a *calendar.PartialFailure carrying the same lists.
func (s *Service) ScheduleSplit(ctx context.Context, blocks []calendar.ProposedEvent) ([]calendar.Event, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: events are required", calendar.ErrValidation)
	}
	for i, b := range blocks {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
	}

	created := make([]calendar.Event, 0, len(blocks))
	var failed []calendar.BlockFailure
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			failed = append(failed, calendar.BlockFailure{Event: b, Reason: "request cancelled before this block was scheduled"})
			continue
		}
		ev, err := s.ScheduleAt(ctx, b)
		if err == nil {
			created = append(created, ev)
			continue
		}

		var ce *calendar.ConflictError
		if errors.As(err, &ce) {
			failed = append(failed, calendar.BlockFailure{Event: b, Reason: "conflicts with an existing event", Conflicts: ce.Report.Conflicts})
		} else {
			s.logger.Error("split block failed", "summary", b.Summary, "error", err)
			failed = append(failed, calendar.BlockFailure{Event: b, Reason: "internal error"})
		}
	}

	s.logger.Info("split scheduled", "created", len(created), "failed", len(failed))
	if len(failed) > 0 {
		return created, &calendar.PartialFailure{Created: created, Failed: failed}
	}
	return created, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: event id is required", calendar.ErrValidation)
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("event deleted", "id", id)
	s.publish(SubjectEventDeleted, map[string]string{"id": id})
	return nil
}

// Today returns the events of the current local day.
func (s *Service) Today(ctx context.Context) ([]calendar.Event, error) {
	return s.Day(ctx, s.now())
}

// Day returns the events of the local day containing t.
func (s *Service) Day(ctx context.Context, t time.Time) ([]calendar.Event, error) {
	start := calendar.StartOfDay(t.In(s.Location()))
	return s.events.Query(ctx, start, start.AddDate(0, 0, 1))
}

// Range returns events overlapping [from, to).
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: start must be before end", calendar.ErrValidation)
	}
	return s.events.Query(ctx, from, to)
}

func (s *Service) publish(subject string, data any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish", "subject", subject, "error", err)
	}
}
