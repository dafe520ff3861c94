package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var day = time.Date(2030, 5, 6, 0, 0, 0, 0, time.UTC)

func agenda() []calendar.Event {
	return []calendar.Event{
		{ID: "1", Summary: "Standup", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 15*time.Minute)},
		{ID: "2", Summary: "CS 101 homework", Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour)},
	}
}

func TestFormatAgenda(t *testing.T) {
	msg := formatAgenda(day, agenda())

	checks := []string{
		"*9:00 AM-9:15 AM* Standup",
		"*2:00 PM-4:00 PM* CS 101 homework",
		"2 event(s), 2h15m booked",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got:\n%s", check, msg)
		}
	}
}

func TestFormatAgenda_Location(t *testing.T) {
	loc := time.FixedZone("UTC-4", -4*3600)
	msg := formatAgenda(day.In(loc), agenda())
	if !strings.Contains(msg, "*5:00 AM-5:15 AM* Standup") {
		t.Errorf("expected local times, got:\n%s", msg)
	}
}

func TestFormatAgenda_Empty(t *testing.T) {
	if msg := formatAgenda(day, nil); msg != "_Nothing scheduled._" {
		t.Errorf("unexpected empty agenda %q", msg)
	}
}

func TestPostAgenda_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}
		if text, _ := payload["text"].(string); !strings.Contains(text, "Standup") {
			t.Errorf("expected agenda text, got %q", text)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostAgenda(context.Background(), day, agenda())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
}

func TestPostAgenda_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostAgenda(context.Background(), day, agenda())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
}
