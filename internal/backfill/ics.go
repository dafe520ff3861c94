package backfill

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Candidate is one importable VEVENT.
type Candidate struct {
	UID   string
	Event calendar.ProposedEvent
}

// SkipReason explains why a VEVENT was not turned into a Candidate.
type SkipReason string

const (
	SkipNoUID     SkipReason = "missing UID"
	SkipAllDay    SkipReason = "all-day event"
	SkipRecurring SkipReason = "recurring event"
	SkipCancelled SkipReason = "cancelled"
	SkipBadTime   SkipReason = "unreadable start or end"
)

// Skipped records a VEVENT that was left out.
type Skipped struct {
	UID    string
	Reason SkipReason
}

// ParseICS reads single-occurrence timed events from an iCalendar feed.
// Floating times and events without DTEND are read in loc and given
// defaultDuration respectively.
func ParseICS(r io.Reader, loc *time.Location, defaultDuration time.Duration) ([]Candidate, []Skipped, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse calendar: %w", err)
	}

	var (
		out     []Candidate
		skipped []Skipped
	)
	for _, ve := range cal.Events() {
		c, reason := candidate(ve, loc, defaultDuration)
		if reason != "" {
			skipped = append(skipped, Skipped{UID: c.UID, Reason: reason})
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

func candidate(ve *ical.VEvent, loc *time.Location, defaultDuration time.Duration) (Candidate, SkipReason) {
	var c Candidate
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		c.UID = strings.TrimSpace(p.Value)
	}
	if c.UID == "" {
		return c, SkipNoUID
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return c, SkipCancelled
	}
	if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
		return c, SkipRecurring
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return c, SkipBadTime
	}
	if !strings.Contains(startProp.Value, "T") || hasParam(startProp, "VALUE", "DATE") {
		return c, SkipAllDay
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return c, SkipBadTime
	}
	start = floating(start, startProp, loc)

	end := start.Add(defaultDuration)
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		t, err := ve.GetEndAt()
		if err != nil {
			return c, SkipBadTime
		}
		end = floating(t, endProp, loc)
	}

	summary := "Imported event"
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		summary = strings.TrimSpace(p.Value)
	}

	c.Event = calendar.ProposedEvent{Summary: summary, Start: start, End: end}
	if c.Event.Validate() != nil {
		return c, SkipBadTime
	}
	return c, ""
}

// floating re-reads a zone-less, TZID-less wall clock time in loc. The
// library reads those in time.Local.
func floating(t time.Time, prop *ical.IANAProperty, loc *time.Location) time.Time {
	if strings.HasSuffix(prop.Value, "Z") {
		return t
	}
	if _, ok := prop.ICalParameters["TZID"]; ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func hasParam(prop *ical.IANAProperty, key, value string) bool {
	for _, v := range prop.ICalParameters[key] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
