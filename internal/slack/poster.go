// Package slack posts the daily agenda to a Slack channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostAgenda posts the events of day, formatted in day's location.
// Returns the message timestamp.
func (p *Poster) PostAgenda(ctx context.Context, day time.Time, events []calendar.Event) (string, error) {
	text := formatAgenda(day, events)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "Agenda for " + day.Format("Monday, January 2"),
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted agenda to slack", "ts", ts, "events", len(events))
	return ts, nil
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatAgenda(day time.Time, events []calendar.Event) string {
	if len(events) == 0 {
		return "_Nothing scheduled._"
	}

	var sb strings.Builder
	loc := day.Location()
	var total time.Duration
	for _, ev := range events {
		fmt.Fprintf(&sb, "• *%s-%s* %s\n",
			ev.Start.In(loc).Format("3:04 PM"), ev.End.In(loc).Format("3:04 PM"), ev.Summary)
		total += ev.End.Sub(ev.Start)
	}
	fmt.Fprintf(&sb, "\n%d event(s), %s booked", len(events), formatBooked(total))
	return sb.String()
}

func formatBooked(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}
