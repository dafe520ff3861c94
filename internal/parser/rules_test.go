package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Monday 2030-05-06 10:07 UTC.
var now = time.Date(2030, 5, 6, 10, 7, 0, 0, time.UTC)

func at(month time.Month, day, h, m int) time.Time {
	return time.Date(2030, month, day, h, m, 0, 0, time.UTC)
}

type stubHints struct {
	class, typ string
	d          time.Duration
	calls      int
}

func (h *stubHints) SuggestDuration(_ context.Context, class, typ string) (time.Duration, bool) {
	h.calls++
	if class == h.class && typ == h.typ {
		return h.d, true
	}
	return 0, false
}

func TestRules_Parse(t *testing.T) {
	tests := []struct {
		text    string
		summary string
		start   time.Time
		end     time.Time
	}{
		{"Schedule a meeting tomorrow at 3pm for 2 hours", "Meeting", at(5, 7, 15, 0), at(5, 7, 17, 0)},
		{"Dentist on Friday at 10:30am", "Dentist", at(5, 10, 10, 30), at(5, 10, 11, 30)},
		{"lunch with Sam next monday at noon", "Lunch with Sam", at(5, 13, 12, 0), at(5, 13, 13, 0)},
		{"gym monday 9am", "Gym", at(5, 13, 9, 0), at(5, 13, 10, 0)},
		{"team sync 2-4pm tomorrow", "Team sync", at(5, 7, 14, 0), at(5, 7, 16, 0)},
		{"review 11-1pm today", "Review", at(5, 6, 11, 0), at(5, 6, 13, 0)},
		{"standup at 9:15", "Standup", at(5, 7, 9, 15), at(5, 7, 10, 15)},
		{"call mom in 2 hours", "Call mom", at(5, 6, 12, 7), at(5, 6, 13, 7)},
		{"Essay writing on 2030-05-20 for 90 minutes", "Essay writing", at(5, 20, 9, 0), at(5, 20, 10, 30)},
		{"party on June 1st at 8pm", "Party", at(6, 1, 20, 0), at(6, 1, 21, 0)},
		{"sleep tonight", "Sleep", at(5, 6, 20, 0), at(5, 6, 21, 0)},
		{"tonight at 9 movie", "Movie", at(5, 6, 21, 0), at(5, 6, 22, 0)},
		{"read for an hour and a half the day after tomorrow", "Read", at(5, 8, 9, 0), at(5, 8, 10, 30)},
		{"write report at 14:00 for 1h30m", "Write report", at(5, 6, 14, 0), at(5, 6, 15, 30)},
		{"project work 4-5 hours on Wednesday", "Project work", at(5, 8, 9, 0), at(5, 8, 13, 30)},
		{"deep work next week", "Deep work", at(5, 13, 9, 0), at(5, 13, 10, 0)},
		{"plan trip in 2 weeks at 6pm", "Trip", at(5, 20, 18, 0), at(5, 20, 19, 0)},
		{"finish homework today", "Finish homework", at(5, 6, 10, 15), at(5, 6, 11, 15)},
		{"coffee tomorrow at 8am", "Coffee", at(5, 7, 8, 0), at(5, 7, 9, 0)},
		{"Work on ECEN 380 homework 5, due next Friday", "Work on ECEN 380 homework 5", at(5, 10, 9, 0), at(5, 10, 10, 0)},
		{"late shift 2030-05-09T22:00", "Late shift", at(5, 9, 22, 0), at(5, 9, 23, 0)},
	}

	r := NewRules(time.UTC, nil, time.Hour)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.Parse(context.Background(), tt.text, now)
			require.NoError(t, err)
			assert.Equal(t, tt.summary, got.Summary)
			assert.True(t, got.Start.Equal(tt.start), "start: got %s want %s", got.Start, tt.start)
			assert.True(t, got.End.Equal(tt.end), "end: got %s want %s", got.End, tt.end)
		})
	}
}

func TestRules_RollsForward(t *testing.T) {
	r := NewRules(time.UTC, nil, time.Hour)

	got, err := r.Parse(context.Background(), "exam review on 3/1", now)
	require.NoError(t, err)
	assert.Equal(t, "Exam review", got.Summary)
	assert.True(t, got.Start.Equal(time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC)), "got %s", got.Start)
}

func TestRules_Errors(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{"   ", calendar.ErrValidation},
		{"lunch with Sam", calendar.ErrParse},
		{"meeting for a few hours tomorrow", calendar.ErrParse},
		{"2030-01-01 at 9am meeting", calendar.ErrParse},
		{"today at 9am", calendar.ErrParse},
		{"tomorrow 2-4pm for 3 hours", calendar.ErrParse},
		{"meeting at 13pm tomorrow", calendar.ErrParse},
		{"party on February 30", calendar.ErrParse},
	}

	r := NewRules(time.UTC, nil, time.Hour)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := r.Parse(context.Background(), tt.text, now)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRules_LearnedDuration(t *testing.T) {
	hints := &stubHints{class: "CS 101", typ: "homework", d: 4 * time.Hour}
	r := NewRules(time.UTC, hints, time.Hour)

	got, err := r.Parse(context.Background(), "CS101 homework tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, "CS101 homework", got.Summary)
	assert.True(t, got.Start.Equal(at(5, 7, 9, 0)))
	assert.Equal(t, 4*time.Hour, got.Duration())

	got, err = r.Parse(context.Background(), "CS101 homework tomorrow for 2 hours", now)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, got.Duration(), "explicit duration wins over learned pattern")

	got, err = r.Parse(context.Background(), "dinner tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.Duration())
	assert.Equal(t, 1, hints.calls, "hints are only consulted for known activity types without a duration")
}

func TestRules_Location(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	r := NewRules(loc, nil, time.Hour)

	// 10:07 UTC is 05:07 local, so 9am today is still ahead.
	got, err := r.Parse(context.Background(), "standup today at 9am", now)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(time.Date(2030, 5, 6, 9, 0, 0, 0, loc)), "got %s", got.Start)
}

func TestRules_Deterministic(t *testing.T) {
	r := NewRules(time.UTC, nil, time.Hour)
	a, err := r.Parse(context.Background(), "team sync 2-4pm tomorrow", now)
	require.NoError(t, err)
	b, err := r.Parse(context.Background(), "team sync 2-4pm tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
