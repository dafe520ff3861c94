package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/parser"
	"github.com/MikeSquared-Agency/tempo/internal/slots"
	"github.com/MikeSquared-Agency/tempo/internal/split"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

// Monday 2030-05-06 08:00 UTC.
var now = time.Date(2030, 5, 6, 8, 0, 0, 0, time.UTC)

func at(day, h, m int) time.Time {
	return time.Date(2030, 5, day, h, m, 0, 0, time.UTC)
}

type published struct {
	subject string
	data    any
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) Publish(subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{subject, data})
	return nil
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.subject
	}
	return out
}

func newService(t *testing.T, events store.Events) (*Service, *recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	finder := slots.NewFinder(slots.DefaultPolicy(), time.UTC)
	rec := &recorder{}
	svc := New(events, parser.NewRules(time.UTC, nil, time.Hour), finder, split.NewSplitter(split.DefaultPolicy(), finder), rec, 200*time.Millisecond, logger)
	svc.SetClock(func() time.Time { return now })
	return svc, rec
}

func seed(t *testing.T, s store.Events, summary string, start, end time.Time) calendar.Event {
	t.Helper()
	ev, err := s.Create(context.Background(), calendar.ProposedEvent{Summary: summary, Start: start, End: end})
	require.NoError(t, err)
	return ev
}

func proposed(summary string, start, end time.Time) calendar.ProposedEvent {
	return calendar.ProposedEvent{Summary: summary, Start: start, End: end}
}

func TestSchedule_Commits(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)

	ev, err := svc.Schedule(context.Background(), "meeting tomorrow at 3pm for 2 hours")
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Meeting", ev.Summary)
	assert.True(t, ev.Start.Equal(at(7, 15, 0)))
	assert.True(t, ev.End.Equal(at(7, 17, 0)))

	stored, err := mem.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Summary, stored.Summary)
	assert.Equal(t, []string{SubjectEventCreated}, rec.subjects())
}

func TestSchedule_ParseError(t *testing.T) {
	svc, _ := newService(t, store.NewMemory())

	_, err := svc.Schedule(context.Background(), "lunch with Sam")
	assert.ErrorIs(t, err, calendar.ErrParse)
}

func TestScheduleAt_Conflict(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)
	standup := seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	_, err := svc.ScheduleAt(context.Background(), proposed("Review", at(7, 9, 30), at(7, 10, 30)))
	require.ErrorIs(t, err, calendar.ErrConflict)

	var ce *calendar.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Report.Conflicts, 1)
	assert.Equal(t, standup.ID, ce.Report.Conflicts[0].Existing.ID)
	assert.Equal(t, 30, ce.Report.Conflicts[0].OverlapMinutes)
	assert.Equal(t, "Review", ce.Report.Proposed.Summary)

	events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
	require.NoError(t, err)
	assert.Len(t, events, 1, "nothing is committed on conflict")
	assert.Empty(t, rec.subjects())
}

func TestScheduleAt_TouchingIsNotConflict(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)
	seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	_, err := svc.ScheduleAt(context.Background(), proposed("Review", at(7, 10, 0), at(7, 11, 0)))
	assert.NoError(t, err)
}

func TestScheduleAt_Concurrent(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ScheduleAt(context.Background(), proposed("Slot", at(7, 9, 0), at(7, 10, 0)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, calendar.ErrConflict)
		}
	}
	assert.Equal(t, 1, ok, "exactly one concurrent request wins the slot")
}

func TestForce_IgnoresConflicts(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)
	seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	ev, err := svc.Force(context.Background(), proposed("Review", at(7, 9, 30), at(7, 10, 30)))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)

	events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, []string{SubjectEventCreated}, rec.subjects())

	_, err = svc.Force(context.Background(), proposed("", at(7, 9, 30), at(7, 10, 30)))
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestAlternatives(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)
	standup := seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))
	p := proposed("Review", at(7, 9, 30), at(7, 10, 30))

	alts, err := svc.Alternatives(context.Background(), p, nil)
	require.NoError(t, err)

	require.NotEmpty(t, alts.NewEvent)
	assert.LessOrEqual(t, len(alts.NewEvent), 3)
	for _, a := range alts.NewEvent {
		assert.Equal(t, time.Hour, a.End.Sub(a.Start))
		assert.False(t, calendar.Interval{Start: a.Start, End: a.End}.Overlaps(standup.Interval()))
		assert.False(t, a.Start.Before(now))
	}

	require.NotEmpty(t, alts.ExistingEvent)
	for _, a := range alts.ExistingEvent {
		assert.Equal(t, standup.ID, a.ExistingEventID)
		assert.Equal(t, "Standup", a.ExistingEventTitle)
		assert.False(t, calendar.Interval{Start: a.NewStart, End: a.NewEnd}.Overlaps(p.Interval()))
	}
}

func TestAlternatives_Invalid(t *testing.T) {
	svc, _ := newService(t, store.NewMemory())

	alts, err := svc.Alternatives(context.Background(), proposed("x", at(7, 10, 0), at(7, 9, 0)), nil)
	assert.ErrorIs(t, err, calendar.ErrValidation)
	assert.NotNil(t, alts.NewEvent)
}

type slowEvents struct {
	*store.Memory
}

func (s slowEvents) Query(ctx context.Context, _, _ time.Time) ([]calendar.Event, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAlternatives_TimeoutDegradesToEmpty(t *testing.T) {
	svc, _ := newService(t, slowEvents{store.NewMemory()})

	start := time.Now()
	alts, err := svc.Alternatives(context.Background(), proposed("Review", at(7, 9, 30), at(7, 10, 30)), nil)
	require.NoError(t, err)
	assert.Empty(t, alts.NewEvent)
	assert.Empty(t, alts.ExistingEvent)
	assert.NotNil(t, alts.NewEvent)
	assert.NotNil(t, alts.ExistingEvent)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMoveExisting(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)
	standup := seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	moved, created, err := svc.MoveExisting(context.Background(), standup.ID, at(7, 11, 0), at(7, 12, 0),
		proposed("Interview", at(7, 9, 0), at(7, 10, 0)))
	require.NoError(t, err)
	assert.Equal(t, standup.ID, moved.ID)
	assert.True(t, moved.Start.Equal(at(7, 11, 0)))
	assert.Equal(t, "Interview", created.Summary)

	events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, created.ID, events[0].ID)
	assert.Equal(t, standup.ID, events[1].ID)
	assert.Equal(t, []string{SubjectEventMoved, SubjectEventCreated}, rec.subjects())
}

func TestMoveExisting_RollsBack(t *testing.T) {
	tests := []struct {
		name             string
		newStart, newEnd time.Time
		proposed         calendar.ProposedEvent
		wantErr          error
	}{
		{"moved onto proposed", at(7, 9, 30), at(7, 10, 30), proposed("Interview", at(7, 9, 0), at(7, 10, 0)), calendar.ErrConflict},
		{"moved onto another event", at(7, 13, 30), at(7, 14, 30), proposed("Interview", at(7, 9, 0), at(7, 10, 0)), calendar.ErrConflict},
		{"proposed still blocked", at(7, 11, 0), at(7, 12, 0), proposed("Interview", at(7, 9, 0), at(7, 13, 30)), calendar.ErrConflict},
		{"inverted move", at(7, 12, 0), at(7, 11, 0), proposed("Interview", at(7, 9, 0), at(7, 10, 0)), calendar.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemory()
			svc, rec := newService(t, mem)
			standup := seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))
			seed(t, mem, "Lunch", at(7, 13, 0), at(7, 14, 0))

			_, _, err := svc.MoveExisting(context.Background(), standup.ID, tt.newStart, tt.newEnd, tt.proposed)
			assert.ErrorIs(t, err, tt.wantErr)

			got, err := mem.Get(context.Background(), standup.ID)
			require.NoError(t, err)
			assert.True(t, got.Start.Equal(at(7, 9, 0)), "standup must stay put")

			events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
			require.NoError(t, err)
			assert.Len(t, events, 2)
			assert.Empty(t, rec.subjects())
		})
	}
}

func TestMoveExisting_NotFound(t *testing.T) {
	svc, _ := newService(t, store.NewMemory())

	_, _, err := svc.MoveExisting(context.Background(), "missing", at(7, 11, 0), at(7, 12, 0),
		proposed("Interview", at(7, 9, 0), at(7, 10, 0)))
	assert.ErrorIs(t, err, calendar.ErrNotFound)
}

func TestSuggestSplit(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)

	got, err := svc.SuggestSplit(context.Background(), proposed("Project", at(7, 9, 0), at(7, 12, 0)))
	require.NoError(t, err)
	assert.Equal(t, calendar.RecommendSingle, got.Recommendation)
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, 3.0, got.TotalHours)

	_, err = svc.SuggestSplit(context.Background(), proposed("", at(7, 9, 0), at(7, 12, 0)))
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestScheduleSplit(t *testing.T) {
	blocks := []calendar.ProposedEvent{
		proposed("Project (part 1 of 3)", at(7, 9, 0), at(7, 10, 0)),
		proposed("Project (part 2 of 3)", at(7, 11, 0), at(7, 12, 0)),
		proposed("Project (part 3 of 3)", at(7, 14, 0), at(7, 15, 0)),
	}

	t.Run("all created", func(t *testing.T) {
		svc, rec := newService(t, store.NewMemory())
		created, err := svc.ScheduleSplit(context.Background(), blocks)
		require.NoError(t, err)
		assert.Len(t, created, 3)
		assert.Len(t, rec.subjects(), 3)
	})

	t.Run("partial", func(t *testing.T) {
		mem := store.NewMemory()
		svc, _ := newService(t, mem)
		seed(t, mem, "Meeting", at(7, 11, 30), at(7, 12, 30))

		created, err := svc.ScheduleSplit(context.Background(), blocks)
		require.Error(t, err)
		assert.Len(t, created, 2)

		var pf *calendar.PartialFailure
		require.True(t, errors.As(err, &pf))
		assert.Len(t, pf.Created, 2)
		require.Len(t, pf.Failed, 1)
		assert.Equal(t, "Project (part 2 of 3)", pf.Failed[0].Event.Summary)
		require.Len(t, pf.Failed[0].Conflicts, 1)
		assert.Equal(t, 30, pf.Failed[0].Conflicts[0].OverlapMinutes)

		events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
		require.NoError(t, err)
		assert.Len(t, events, 3, "created blocks stay committed")
	})

	t.Run("none created", func(t *testing.T) {
		mem := store.NewMemory()
		svc, _ := newService(t, mem)
		seed(t, mem, "All day", at(7, 8, 0), at(7, 20, 0))

		created, err := svc.ScheduleSplit(context.Background(), blocks)
		var pf *calendar.PartialFailure
		require.True(t, errors.As(err, &pf))
		assert.Empty(t, created)
		assert.Len(t, pf.Failed, 3)
	})

	t.Run("invalid block rejects all", func(t *testing.T) {
		mem := store.NewMemory()
		svc, _ := newService(t, mem)
		bad := append([]calendar.ProposedEvent{}, blocks...)
		bad[2].End = bad[2].Start

		_, err := svc.ScheduleSplit(context.Background(), bad)
		assert.ErrorIs(t, err, calendar.ErrValidation)
		events, err := mem.Query(context.Background(), at(7, 0, 0), at(8, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("empty", func(t *testing.T) {
		svc, _ := newService(t, store.NewMemory())
		_, err := svc.ScheduleSplit(context.Background(), nil)
		assert.ErrorIs(t, err, calendar.ErrValidation)
	})
}

func TestDelete(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)
	ev := seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	require.NoError(t, svc.Delete(context.Background(), ev.ID))
	assert.Equal(t, []string{SubjectEventDeleted}, rec.subjects())

	assert.ErrorIs(t, svc.Delete(context.Background(), ev.ID), calendar.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), ""), calendar.ErrValidation)
}

func TestTodayAndRange(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)
	today := seed(t, mem, "Today", at(6, 12, 0), at(6, 13, 0))
	seed(t, mem, "Tomorrow", at(7, 12, 0), at(7, 13, 0))

	got, err := svc.Today(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, today.ID, got[0].ID)

	got, err = svc.Range(context.Background(), at(6, 0, 0), at(8, 0, 0))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = svc.Range(context.Background(), at(8, 0, 0), at(6, 0, 0))
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestHandleScheduleRequest(t *testing.T) {
	mem := store.NewMemory()
	svc, rec := newService(t, mem)
	seed(t, mem, "Standup", at(7, 9, 0), at(7, 10, 0))

	send := func(req ScheduleRequest) {
		data, err := json.Marshal(req)
		require.NoError(t, err)
		svc.HandleScheduleRequest(SubjectScheduleRequested, data)
	}

	send(ScheduleRequest{RequestID: "r1", Text: "review tomorrow at 3pm"})
	send(ScheduleRequest{RequestID: "r2", Text: "review tomorrow at 9am"})
	send(ScheduleRequest{RequestID: "r3", Text: "lunch with Sam"})
	send(ScheduleRequest{RequestID: "r4", Text: "review tomorrow at 9am", Force: true})
	svc.HandleScheduleRequest(SubjectScheduleRequested, []byte("{not json"))

	rec.mu.Lock()
	defer rec.mu.Unlock()

	var replies []ScheduleReply
	var subjects []string
	for _, m := range rec.msgs {
		if r, ok := m.data.(ScheduleReply); ok {
			replies = append(replies, r)
			subjects = append(subjects, m.subject)
		}
	}
	require.Len(t, replies, 4)
	assert.Equal(t, []string{SubjectScheduleCompleted, SubjectScheduleConflict, SubjectScheduleFailed, SubjectScheduleCompleted}, subjects)

	assert.Equal(t, "r1", replies[0].RequestID)
	require.NotNil(t, replies[0].Event)
	assert.True(t, replies[0].Event.Start.Equal(at(7, 15, 0)))

	require.Len(t, replies[1].Conflicts, 1)
	assert.Equal(t, 60, replies[1].Conflicts[0].Conflicts[0].OverlapMinutes)
	require.NotNil(t, replies[1].Alternatives)
	assert.NotEmpty(t, replies[1].Alternatives.NewEvent)

	assert.NotEmpty(t, replies[2].Error)
	assert.Equal(t, "r4", replies[3].RequestID)
}

func TestAlternatives_LongExistingEventSeesWholeCalendar(t *testing.T) {
	mem := store.NewMemory()
	svc, _ := newService(t, mem)

	conference := seed(t, mem, "Conference", at(14, 8, 0), at(14, 22, 0))
	dentist := seed(t, mem, "Dentist", at(7, 9, 0), at(7, 10, 0))
	// Lunch on every other day inside the horizon leaves no free 08:00-22:00 day.
	for d := 8; d <= 21; d++ {
		if d != 14 {
			seed(t, mem, "Lunch", at(d, 12, 0), at(d, 13, 0))
		}
	}
	p := proposed("Call", at(14, 21, 0), at(14, 22, 0))

	alts, err := svc.Alternatives(context.Background(), p, nil)
	require.NoError(t, err)

	all, err := mem.Query(context.Background(), at(1, 0, 0), at(31, 0, 0))
	require.NoError(t, err)
	for _, a := range alts.ExistingEvent {
		assert.Equal(t, conference.ID, a.ExistingEventID)
		moved := calendar.Interval{Start: a.NewStart, End: a.NewEnd}
		for _, ev := range all {
			if ev.ID == conference.ID {
				continue
			}
			assert.False(t, moved.Overlaps(ev.Interval()), "moved conference to %s overlaps %s", a.NewStart, ev.Summary)
		}
		assert.False(t, moved.Overlaps(dentist.Interval()))
	}
	assert.Empty(t, alts.ExistingEvent)
}
