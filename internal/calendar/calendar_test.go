package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2030, 5, 6, h, m, 0, 0, time.UTC)
}

func TestInterval_Overlap(t *testing.T) {
	base := Interval{Start: at(10, 0), End: at(11, 0)}
	tests := []struct {
		name  string
		other Interval
		want  time.Duration
	}{
		{"identical", base, time.Hour},
		{"partial start", Interval{at(9, 30), at(10, 15)}, 15 * time.Minute},
		{"partial end", Interval{at(10, 45), at(12, 0)}, 15 * time.Minute},
		{"contained", Interval{at(10, 20), at(10, 40)}, 20 * time.Minute},
		{"containing", Interval{at(9, 0), at(12, 0)}, time.Hour},
		{"touching before", Interval{at(9, 0), at(10, 0)}, 0},
		{"touching after", Interval{at(11, 0), at(12, 0)}, 0},
		{"disjoint", Interval{at(13, 0), at(14, 0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlap(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlap(base))
			assert.Equal(t, tt.want > 0, base.Overlaps(tt.other))
		})
	}
}

func TestProposedEvent_Validate(t *testing.T) {
	ok := ProposedEvent{Summary: "Lab", Start: at(10, 0), End: at(11, 0)}
	require.NoError(t, ok.Validate())

	for name, p := range map[string]ProposedEvent{
		"no summary": {Start: at(10, 0), End: at(11, 0)},
		"no start":   {Summary: "Lab", End: at(11, 0)},
		"empty":      {Summary: "Lab", Start: at(10, 0), End: at(10, 0)},
		"inverted":   {Summary: "Lab", Start: at(11, 0), End: at(10, 0)},
	} {
		assert.ErrorIs(t, p.Validate(), ErrValidation, name)
	}
}

func TestParseTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := ParseTime("2030-05-06T14:00:00Z", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(at(14, 0)))
	assert.Equal(t, ny, got.Location())

	got, err = ParseTime("2030-05-06T10:00", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(at(14, 0)), "zone-less input is read in loc")

	got, err = ParseTime(" 2030-05-06 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at(0, 0), got)

	for _, bad := range []string{"", "tomorrow", "2030-13-01"} {
		_, err := ParseTime(bad, time.UTC)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestStartOfDayAndSameDay(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*3600)
	late := time.Date(2030, 5, 6, 23, 30, 0, 0, plus2)

	assert.Equal(t, time.Date(2030, 5, 6, 0, 0, 0, 0, plus2), StartOfDay(late))
	assert.True(t, SameDay(late, late.UTC()), "instant compared in the first argument's zone")
	assert.False(t, SameDay(late, time.Date(2030, 5, 7, 0, 30, 0, 0, plus2)))
	assert.True(t, SameDay(late.UTC(), time.Date(2030, 5, 7, 0, 30, 0, 0, plus2)), "both fall on 6 May in UTC")
}

func TestConflictError(t *testing.T) {
	err := error(&ConflictError{Report: ConflictReport{
		Proposed:  ProposedEvent{Summary: "Study"},
		Conflicts: []Conflict{{OverlapMinutes: 30}},
	}})
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, `"Study" conflicts with 1 existing event(s)`, err.Error())

	pf := &PartialFailure{Created: make([]Event, 2), Failed: make([]BlockFailure, 1)}
	assert.Equal(t, "created 2 of 3 events", pf.Error())
}

func TestPatternSnapshot_Put(t *testing.T) {
	s := NewPatternSnapshot()
	s.Put(PatternKey{Class: "CS101", Type: "homework"}, Pattern{TypicalDurationHours: 4})
	s.Put(PatternKey{Class: "CS101", Type: "exam"}, Pattern{TypicalDurationHours: 2})
	s.Put(PatternKey{Type: "essay"}, Pattern{TypicalDurationHours: 3})

	assert.Len(t, s.ClassPatterns["CS101"], 2)
	assert.Equal(t, 4.0, s.ClassPatterns["CS101"]["homework"].TypicalDurationHours)
	assert.Equal(t, 3.0, s.AssignmentTypePatterns["essay"].TypicalDurationHours)
	assert.Empty(t, s.GeneralFeedback)
}

func TestHours(t *testing.T) {
	assert.Equal(t, 1.5, Hours(90*time.Minute))
	assert.Equal(t, 0.33, Hours(20*time.Minute))
	assert.Equal(t, 0.0, Hours(0))
}
