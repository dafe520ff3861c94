package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// eventBody is the wire form of a proposed event. Times are strings so
// zone-less ISO values can be read in the configured location.
type eventBody struct {
	Summary   string `json:"summary"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (b eventBody) proposed(loc *time.Location) (calendar.ProposedEvent, error) {
	start, err := calendar.ParseTime(b.StartTime, loc)
	if err != nil {
		return calendar.ProposedEvent{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := calendar.ParseTime(b.EndTime, loc)
	if err != nil {
		return calendar.ProposedEvent{}, fmt.Errorf("end_time: %w", err)
	}
	p := calendar.ProposedEvent{Summary: strings.TrimSpace(b.Summary), Start: start, End: end}
	return p, p.Validate()
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", calendar.ErrValidation, err)
	}
	return nil
}

func (s *Server) scheduledMessage(ev calendar.Event) string {
	return fmt.Sprintf("Event '%s' scheduled for %s", ev.Summary, ev.Start.In(s.scheduler.Location()).Format("Mon Jan 2 at 3:04 PM"))
}

// schedule handles POST /schedule
func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.scheduler.Schedule(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": s.scheduledMessage(ev),
		"event":   ev,
	})
}

type taskItem struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	StartTime string `json:"start_time"`
}

// tasks handles GET /tasks
func (s *Server) tasks(w http.ResponseWriter, r *http.Request) {
	events, err := s.scheduler.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]taskItem, 0, len(events))
	for _, ev := range events {
		out = append(out, taskItem{
			ID:        ev.ID,
			Summary:   ev.Summary,
			StartTime: ev.Start.In(s.scheduler.Location()).Format("03:04 PM"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// feedItem is the FullCalendar event object.
type feedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// events handles GET /events?start=...&end=...
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.queryRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.scheduler.Range(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loc := s.scheduler.Location()
	out := make([]feedItem, 0, len(events))
	for _, ev := range events {
		out = append(out, feedItem{
			ID:    ev.ID,
			Title: ev.Summary,
			Start: ev.Start.In(loc).Format(time.RFC3339),
			End:   ev.End.In(loc).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// queryRange reads start and end query parameters. Without either, the
// range is the next 30 days from local midnight.
func (s *Server) queryRange(r *http.Request) (time.Time, time.Time, error) {
	loc := s.scheduler.Location()
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")

	if rawStart == "" && rawEnd == "" {
		from := calendar.StartOfDay(s.scheduler.Now().In(loc))
		return from, from.AddDate(0, 0, 30), nil
	}
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both start and end are required", calendar.ErrValidation)
	}

	from, err := calendar.ParseTime(unescapePlus(rawStart), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	to, err := calendar.ParseTime(unescapePlus(rawEnd), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be before end", calendar.ErrValidation)
	}
	return from, to, nil
}

// unescapePlus restores a "+hh:mm" offset that query decoding turned into a space.
func unescapePlus(v string) string {
	if i := strings.LastIndexByte(v, ' '); i > 0 && strings.Contains(v[:i], "T") {
		return v[:i] + "+" + v[i+1:]
	}
	return v
}

// deleteEvent handles DELETE /delete_event/{id}
func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted"})
}

// scheduleAlternative handles POST /schedule_alternative
func (s *Server) scheduleAlternative(w http.ResponseWriter, r *http.Request) {
	var req eventBody
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := req.proposed(s.scheduler.Location())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.scheduler.ScheduleAt(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": s.scheduledMessage(ev),
		"event":   ev,
	})
}

// forceSchedule handles POST /force_schedule
func (s *Server) forceSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event eventBody `json:"event"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := req.Event.proposed(s.scheduler.Location())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.scheduler.Force(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": s.scheduledMessage(ev) + " (conflicts ignored)",
		"event":   ev,
	})
}
