// Package learning turns free-text feedback into duration patterns and
// serves them back to the parser and splitter.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

// SubjectLearned is published after a structured pattern is stored.
const SubjectLearned = "tempo.feedback.learned"

type Publisher interface {
	Publish(subject string, data any) error
}

// Extraction is what was understood from one piece of feedback.
type Extraction struct {
	ClassName      string  `json:"class_name,omitempty"`
	AssignmentType string  `json:"assignment_type,omitempty"`
	DurationHours  float64 `json:"duration_hours,omitempty"`
}

// Result is returned to the caller so it can show what was learned.
type Result struct {
	Message   string      `json:"message"`
	Extracted *Extraction `json:"extracted,omitempty"`
	Note      string      `json:"note,omitempty"`
}

// View is the read-only inspection payload.
type View struct {
	Summary string                   `json:"summary"`
	RawData calendar.PatternSnapshot `json:"raw_data"`
}

type Learner struct {
	patterns  store.Patterns
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewLearner(patterns store.Patterns, logger *slog.Logger) *Learner {
	return &Learner{patterns: patterns, logger: logger, now: time.Now}
}

// SetPublisher enables tempo.feedback.learned notifications.
func (l *Learner) SetPublisher(p Publisher) {
	l.publisher = p
}

// Learn stores feedback. Text with an assignment type and a duration becomes
// a keyed pattern; anything else is kept verbatim as general feedback.
func (l *Learner) Learn(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: feedback_text is required", calendar.ErrValidation)
	}
	now := l.now()

	class, _ := ExtractClass(text)
	typ, hasType := ExtractAssignmentType(text)
	d, hasDuration := ExtractDuration(text)

	if !hasType || !hasDuration {
		if err := l.patterns.AppendFeedback(ctx, calendar.FeedbackEntry{Text: text, AddedAt: now}); err != nil {
			return Result{}, fmt.Errorf("store feedback: %w", err)
		}
		l.logger.Info("general feedback stored", "has_type", hasType, "has_duration", hasDuration)
		return Result{
			Message: "Feedback saved",
			Note:    "No assignment type and duration found; stored as a general scheduling preference",
		}, nil
	}

	key := calendar.PatternKey{Class: class, Type: typ}
	pattern := calendar.Pattern{
		TypicalDurationHours: calendar.Hours(d),
		Notes:                fmt.Sprintf("Learned from: %s", text),
		UpdatedAt:            now,
	}
	if err := l.patterns.UpsertPattern(ctx, key, pattern); err != nil {
		return Result{}, fmt.Errorf("store pattern: %w", err)
	}

	ext := &Extraction{ClassName: class, AssignmentType: typ, DurationHours: pattern.TypicalDurationHours}
	l.logger.Info("pattern learned", "class", class, "type", typ, "hours", pattern.TypicalDurationHours)

	if l.publisher != nil {
		if err := l.publisher.Publish(SubjectLearned, ext); err != nil {
			l.logger.Warn("failed to publish learned pattern", "error", err)
		}
	}

	subject := typ
	if class != "" {
		subject = class + " " + typ
	}
	return Result{
		Message:   fmt.Sprintf("Learned: %s takes about %g hours", subject, pattern.TypicalDurationHours),
		Extracted: ext,
	}, nil
}

// View returns the stored patterns with a readable summary.
func (l *Learner) View(ctx context.Context) (View, error) {
	snap, err := l.patterns.PatternSnapshot(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load patterns: %w", err)
	}
	return View{Summary: Summary(snap), RawData: snap}, nil
}

// SuggestDuration looks up class+type first, then the type alone.
func (l *Learner) SuggestDuration(ctx context.Context, class, typ string) (time.Duration, bool) {
	if typ == "" {
		return 0, false
	}
	keys := []calendar.PatternKey{{Type: typ}}
	if class != "" {
		keys = []calendar.PatternKey{{Class: class, Type: typ}, {Type: typ}}
	}
	for _, key := range keys {
		p, ok, err := l.patterns.LookupPattern(ctx, key)
		if err != nil {
			l.logger.Warn("pattern lookup failed", "class", key.Class, "type", key.Type, "error", err)
			return 0, false
		}
		if ok && p.TypicalDurationHours > 0 {
			return time.Duration(p.TypicalDurationHours * float64(time.Hour)).Round(time.Minute), true
		}
	}
	return 0, false
}

// PromptContext is the summary handed to the LLM parser.
func (l *Learner) PromptContext(ctx context.Context) string {
	v, err := l.View(ctx)
	if err != nil {
		l.logger.Warn("pattern summary unavailable", "error", err)
		return ""
	}
	return v.Summary
}
