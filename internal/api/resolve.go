package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// conflictBody is the part of a conflict the client echoes back.
type conflictBody struct {
	Existing struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	} `json:"existing_event"`
	OverlapMinutes int `json:"overlap_minutes"`
}

// getAlternatives handles POST /get_alternatives
func (s *Server) getAlternatives(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposedEvent eventBody      `json:"proposed_event"`
		Conflicts     []conflictBody `json:"conflicts"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := req.ProposedEvent.proposed(s.scheduler.Location())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conflicts := make([]calendar.Conflict, 0, len(req.Conflicts))
	for _, c := range req.Conflicts {
		conflicts = append(conflicts, calendar.Conflict{
			Existing:       calendar.Event{ID: c.Existing.ID, Summary: c.Existing.Summary},
			OverlapMinutes: c.OverlapMinutes,
		})
	}

	alts, err := s.scheduler.Alternatives(r.Context(), p, conflicts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alts)
}

// moveExistingEvent handles POST /move_existing_event
func (s *Server) moveExistingEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExistingEventID string    `json:"existing_event_id"`
		NewStartTime    string    `json:"new_start_time"`
		NewEndTime      string    `json:"new_end_time"`
		ProposedEvent   eventBody `json:"proposed_event"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ExistingEventID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: existing_event_id is required", calendar.ErrValidation))
		return
	}

	loc := s.scheduler.Location()
	newStart, err := calendar.ParseTime(req.NewStartTime, loc)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("new_start_time: %w", err))
		return
	}
	newEnd, err := calendar.ParseTime(req.NewEndTime, loc)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("new_end_time: %w", err))
		return
	}
	p, err := req.ProposedEvent.proposed(loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	moved, created, err := s.scheduler.MoveExisting(r.Context(), req.ExistingEventID, newStart, newEnd, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Moved '%s' to %s and scheduled '%s'",
			moved.Summary, moved.Start.In(loc).Format("Mon Jan 2 at 3:04 PM"), created.Summary),
		"moved_event": moved,
		"event":       created,
	})
}

// suggestSplit handles POST /suggest_split
func (s *Server) suggestSplit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposedEvent eventBody `json:"proposed_event"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := req.ProposedEvent.proposed(s.scheduler.Location())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	suggestion, err := s.scheduler.SuggestSplit(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// scheduleSplit handles POST /schedule_split
func (s *Server) scheduleSplit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []eventBody `json:"events"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	loc := s.scheduler.Location()
	blocks := make([]calendar.ProposedEvent, 0, len(req.Events))
	for i, b := range req.Events {
		p, err := b.proposed(loc)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("event %d: %w", i+1, err))
			return
		}
		blocks = append(blocks, p)
	}

	created, err := s.scheduler.ScheduleSplit(r.Context(), blocks)
	var pf *calendar.PartialFailure
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":       fmt.Sprintf("Scheduled all %d sessions", len(created)),
			"created_count": len(created),
			"created":       created,
		})
	case errors.As(err, &pf) && len(pf.Created) > 0:
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"message":       fmt.Sprintf("Scheduled %d of %d sessions", len(pf.Created), len(blocks)),
			"created_count": len(pf.Created),
			"created":       pf.Created,
			"failed":        pf.Failed,
		})
	case errors.As(err, &pf) && anyConflicts(pf.Failed):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "none of the sessions could be scheduled",
			"created_count": 0,
			"failed":        pf.Failed,
		})
	case errors.As(err, &pf):
		s.logger.Error("split scheduling failed", "blocks", len(blocks), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":         "internal error",
			"created_count": 0,
			"failed":        pf.Failed,
		})
	default:
		s.writeError(w, r, err)
	}
}

func anyConflicts(failed []calendar.BlockFailure) bool {
	for _, f := range failed {
		if len(f.Conflicts) > 0 {
			return true
		}
	}
	return false
}
