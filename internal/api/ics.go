package api

import (
	"net/http"

	ical "github.com/arran4/golang-ical"
)

// eventsICS handles GET /events.ics and serves the same range as /events
// as an iCalendar feed.
func (s *Server) eventsICS(w http.ResponseWriter, r *http.Request) {
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

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//MikeSquared-Agency//tempo//EN")
	cal.SetXWRCalName("tempo")
	cal.SetXWRTimezone(s.scheduler.Location().String())

	stamp := s.scheduler.Now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@tempo")
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Summary)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := cal.SerializeTo(w); err != nil {
		s.logger.Warn("failed to write calendar feed", "error", err)
	}
}
