package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

const (
	SubjectScheduleRequested = "tempo.schedule.requested"
	SubjectScheduleCompleted = "tempo.schedule.completed"
	SubjectScheduleConflict  = "tempo.schedule.conflicted"
	SubjectScheduleFailed    = "tempo.schedule.failed"
)

// ScheduleRequest is the payload other agents publish to ask for an event.
type ScheduleRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text"`
	Force     bool   `json:"force,omitempty"`
}

// ScheduleReply answers a ScheduleRequest on one of the result subjects.
type ScheduleReply struct {
	RequestID    string                    `json:"request_id,omitempty"`
	Event        *calendar.Event           `json:"event,omitempty"`
	Conflicts    []calendar.ConflictReport `json:"conflicts,omitempty"`
	Alternatives *calendar.Alternatives    `json:"alternatives,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// HandleScheduleRequest is the NATS handler for tempo.schedule.requested.
func (s *Service) HandleScheduleRequest(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var req ScheduleRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to parse schedule request", "subject", subject, "error", err)
		return
	}
	s.logger.Info("schedule request received", "request_id", req.RequestID)

	reply := ScheduleReply{RequestID: req.RequestID}

	p, err := s.Parse(ctx, req.Text)
	if err != nil {
		reply.Error = err.Error()
		s.publish(SubjectScheduleFailed, reply)
		return
	}

	var ev calendar.Event
	if req.Force {
		ev, err = s.Force(ctx, p)
	} else {
		ev, err = s.ScheduleAt(ctx, p)
	}

	var ce *calendar.ConflictError
	switch {
	case err == nil:
		reply.Event = &ev
		s.publish(SubjectScheduleCompleted, reply)
	case errors.As(err, &ce):
		alts, _ := s.Alternatives(ctx, p, ce.Report.Conflicts)
		reply.Conflicts = []calendar.ConflictReport{ce.Report}
		reply.Alternatives = &alts
		s.publish(SubjectScheduleConflict, reply)
	default:
		s.logger.Error("schedule request failed", "request_id", req.RequestID, "error", err)
		reply.Error = err.Error()
		s.publish(SubjectScheduleFailed, reply)
	}
}
