package learning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

type recordingPublisher struct {
	subjects []string
	payloads []any
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func newLearner() (*Learner, *store.Memory) {
	mem := store.NewMemory()
	l := NewLearner(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, mem
}

func TestExtractClass(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"CS101 homework takes 4 hours", "CS 101", true},
		{"ecen 380 labs are long", "ECEN 380", true},
		{"math1010 quiz", "MATH 1010", true},
		{"meet in 2030", "", false},
		{"exam on may 2030", "", false},
		{"homework takes 3 hours", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractClass(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAssignmentType(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"CS 220 projects need 6 hours", "project"},
		{"hw is quick", "homework"},
		{"problem sets usually take 3 hours", "homework"},
		{"midterm prep", "exam"},
		{"Lab reports typically take 2 hours", "lab"},
		{"essay writing", "paper"},
		{"review session", "study"},
		{"show me the calendar", ""},
		{"finally done", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _ := ExtractAssignmentType(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDuration(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
		ok   bool
	}{
		{"takes 4 hours", 4 * time.Hour, true},
		{"always takes 4-5 hours", 4*time.Hour + 30*time.Minute, true},
		{"2 to 3 hrs", 2*time.Hour + 30*time.Minute, true},
		{"1.5h", 90 * time.Minute, true},
		{"about 45 minutes", 45 * time.Minute, true},
		{"an hour at most", time.Hour, true},
		{"takes forever", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractDuration(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLearn_ClassPattern(t *testing.T) {
	l, mem := newLearner()
	pub := &recordingPublisher{}
	l.SetPublisher(pub)
	ctx := context.Background()

	res, err := l.Learn(ctx, "ECEN 380 homework always takes 4-5 hours")
	require.NoError(t, err)
	require.NotNil(t, res.Extracted)
	assert.Equal(t, "ECEN 380", res.Extracted.ClassName)
	assert.Equal(t, "homework", res.Extracted.AssignmentType)
	assert.Equal(t, 4.5, res.Extracted.DurationHours)
	assert.Empty(t, res.Note)

	p, ok, err := mem.LookupPattern(ctx, calendar.PatternKey{Class: "ECEN 380", Type: "homework"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4.5, p.TypicalDurationHours)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, SubjectLearned, pub.subjects[0])
}

func TestLearn_MostRecentWins(t *testing.T) {
	l, _ := newLearner()
	ctx := context.Background()

	_, err := l.Learn(ctx, "CS101 homework takes 2 hours")
	require.NoError(t, err)
	_, err = l.Learn(ctx, "CS101 homework takes 4 hours")
	require.NoError(t, err)

	d, ok := l.SuggestDuration(ctx, "CS 101", "homework")
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)
}

func TestLearn_TypeOnlyPattern(t *testing.T) {
	l, _ := newLearner()
	ctx := context.Background()

	res, err := l.Learn(ctx, "Lab reports typically take 2 hours")
	require.NoError(t, err)
	assert.Empty(t, res.Extracted.ClassName)

	d, ok := l.SuggestDuration(ctx, "PHYS 121", "lab")
	require.True(t, ok, "class lookup should fall back to the type pattern")
	assert.Equal(t, 2*time.Hour, d)

	_, ok = l.SuggestDuration(ctx, "PHYS 121", "exam")
	assert.False(t, ok)
}

func TestLearn_GeneralFeedback(t *testing.T) {
	l, mem := newLearner()
	ctx := context.Background()

	res, err := l.Learn(ctx, "  I prefer to study in the evenings  ")
	require.NoError(t, err)
	assert.Nil(t, res.Extracted)
	assert.NotEmpty(t, res.Note)

	snap, err := mem.PatternSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.GeneralFeedback, 1)
	assert.Equal(t, "I prefer to study in the evenings", snap.GeneralFeedback[0].Text)
	assert.Empty(t, snap.AssignmentTypePatterns)
}

func TestLearn_Empty(t *testing.T) {
	l, _ := newLearner()
	_, err := l.Learn(context.Background(), "   ")
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestView(t *testing.T) {
	l, _ := newLearner()
	ctx := context.Background()

	for _, text := range []string{
		"CS 220 projects need 6 hours",
		"ECEN 380 homework always takes 4-5 hours",
		"Lab reports typically take 2 hours",
		"no meetings before 9",
	} {
		_, err := l.Learn(ctx, text)
		require.NoError(t, err)
	}

	v, err := l.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v.RawData.ClassPatterns["CS 220"]["project"].TypicalDurationHours)
	assert.Equal(t, 2.0, v.RawData.AssignmentTypePatterns["lab"].TypicalDurationHours)

	lines := strings.Split(v.Summary, "\n")
	assert.Equal(t, "**Learned Duration Patterns by Class:**", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  - CS 220 project: typically takes 6 hours"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  - ECEN 380 homework: typically takes 4.5 hours"), lines[2])
	assert.Contains(t, v.Summary, "**Learned Duration Patterns by Assignment Type:**")
	assert.Contains(t, v.Summary, "  - Lab: typically takes 2 hours")
	assert.Contains(t, v.Summary, "**User Scheduling Preferences:**\n  - no meetings before 9")

	again, err := l.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestSummary_LimitsFeedback(t *testing.T) {
	snap := calendar.NewPatternSnapshot()
	for i := 0; i < 15; i++ {
		snap.GeneralFeedback = append(snap.GeneralFeedback, calendar.FeedbackEntry{Text: fmt.Sprintf("pref %d", i)})
	}

	s := Summary(snap)
	assert.NotContains(t, s, "pref 4\n")
	assert.Contains(t, s, "pref 5")
	assert.Contains(t, s, "pref 14")
	assert.Equal(t, "", Summary(calendar.NewPatternSnapshot()))
}
