package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/tempo/internal/anthropic"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Completer is the slice of the Anthropic client the parser needs.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// PromptContext supplies learned patterns to include in the prompt.
type PromptContext interface {
	PromptContext(ctx context.Context) string
}

// LLM asks a language model to parse the request and falls back to the
// deterministic parser whenever the model is slow, throttled, or wrong.
type LLM struct {
	client   Completer
	fallback Parser
	patterns PromptContext
	limiter  *rate.Limiter
	timeout  time.Duration
	loc      *time.Location
	logger   *slog.Logger
}

type LLMOption func(*LLM)

func WithPatterns(p PromptContext) LLMOption {
	return func(l *LLM) { l.patterns = p }
}

func WithRateLimit(every time.Duration, burst int) LLMOption {
	return func(l *LLM) { l.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

func WithTimeout(d time.Duration) LLMOption {
	return func(l *LLM) { l.timeout = d }
}

func NewLLM(client Completer, fallback Parser, loc *time.Location, logger *slog.Logger, opts ...LLMOption) *LLM {
	if loc == nil {
		loc = time.UTC
	}
	l := &LLM{
		client:   client,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		timeout:  8 * time.Second,
		loc:      loc,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type llmEvent struct {
	Summary   string `json:"summary"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (l *LLM) Parse(ctx context.Context, text string, now time.Time) (calendar.ProposedEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return calendar.ProposedEvent{}, fmt.Errorf("%w: text is required", calendar.ErrValidation)
	}

	p, err := l.ask(ctx, text, now.In(l.loc))
	if err == nil {
		return p, nil
	}
	l.logger.Warn("llm parse failed, using rules", "error", err)
	return l.fallback.Parse(ctx, text, now)
}

func (l *LLM) ask(ctx context.Context, text string, now time.Time) (calendar.ProposedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.limiter.Wait(ctx); err != nil {
		return calendar.ProposedEvent{}, fmt.Errorf("rate limit: %w", err)
	}

	var learned string
	if l.patterns != nil {
		learned = l.patterns.PromptContext(ctx)
	}
	prompt := fmt.Sprintf(parseUserPrompt, now.Format("2006-01-02T15:04:05 Monday"), l.loc.String(), text)
	if learned != "" {
		prompt += "\n\nUse these learned patterns to estimate durations when none is given:\n" + learned
	}

	raw, err := l.client.Complete(ctx, parseSystemPrompt, []anthropic.Message{{Role: "user", Content: prompt}}, 512)
	if err != nil {
		return calendar.ProposedEvent{}, fmt.Errorf("llm parse: %w", err)
	}

	var resp llmEvent
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		l.logger.Debug("unparseable llm response", "raw", raw)
		return calendar.ProposedEvent{}, fmt.Errorf("decode llm response: %w", err)
	}

	start, err := calendar.ParseTime(resp.StartTime, l.loc)
	if err != nil {
		return calendar.ProposedEvent{}, err
	}
	end, err := calendar.ParseTime(resp.EndTime, l.loc)
	if err != nil {
		return calendar.ProposedEvent{}, err
	}
	p := calendar.ProposedEvent{Summary: strings.TrimSpace(resp.Summary), Start: start, End: end}
	if err := p.Validate(); err != nil {
		return calendar.ProposedEvent{}, err
	}
	if p.Start.Before(now.Add(-time.Minute)) {
		return calendar.ProposedEvent{}, fmt.Errorf("llm proposed a start in the past: %s", p.Start)
	}
	return p, nil
}

// stripFences removes a ```json wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

const parseSystemPrompt = `You turn scheduling requests into calendar events.
Respond with ONLY a JSON object with the keys "summary", "start_time" and "end_time".
Times are ISO 8601 without an offset ("YYYY-MM-DDTHH:MM:SS") in the user's time zone.
Never schedule in the past. Prefer the nearest future occurrence of a weekday or relative phrase.
If no duration is given and no learned pattern applies, assume 1 hour.`

const parseUserPrompt = `The current time is %s (%s).

User request: %q`
