package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/learning"
)

// Rules is the deterministic grammar-based parser.
type Rules struct {
	loc             *time.Location
	hints           DurationHints
	defaultDuration time.Duration
}

func NewRules(loc *time.Location, hints DurationHints, defaultDuration time.Duration) *Rules {
	if loc == nil {
		loc = time.UTC
	}
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	return &Rules{loc: loc, hints: hints, defaultDuration: defaultDuration}
}

// rollover says how a resolved start in the past may move forward.
type rollover int

const (
	rollNone rollover = iota
	rollWeek
	rollYear
)

type clock struct {
	h, m int
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.h, c.m, 0, 0, day.Location())
}

type dateHit struct {
	day  time.Time
	roll rollover
	// soft is the time implied by the date phrase itself ("tonight").
	soft *clock
}

var (
	relativeStart = regexp.MustCompile(`\bin\s+(\d+)\s*(hours?|hrs?|minutes?|mins?)\b`)
	isoDateTime   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})[t ](\d{1,2}):(\d{2})(?::\d{2})?\b`)

	isoDate     = regexp.MustCompile(`\b(?:on\s+)?(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDate   = regexp.MustCompile(`\b(?:on\s+)?(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	monthDate   = regexp.MustCompile(`\b(?:on\s+)?(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayAfter    = regexp.MustCompile(`\b(?:the\s+)?day\s+after\s+tomorrow\b`)
	inDays      = regexp.MustCompile(`\bin\s+(\d+)\s+(days?|weeks?)\b`)
	nextWeek    = regexp.MustCompile(`\bnext\s+week\b`)
	relativeDay = regexp.MustCompile(`\b(today|tonight|tomorrow)\b`)
	weekdayName = regexp.MustCompile(`\b(?:on\s+)?(?:(this|next)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	vagueDuration = regexp.MustCompile(`\b(?:a\s+few|several|some|many|a\s+couple\s+of\s+(?:minutes|mins))\s+(?:hours|hrs|minutes|mins)\b`)
	rangeHours    = regexp.MustCompile(`\b(?:for\s+)?(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	hoursMinutes  = regexp.MustCompile(`\b(?:for\s+)?(\d+)\s*(?:hours?|hrs?|h)\s*(?:and\s+)?(\d+)\s*(?:minutes?|mins?|m)\b`)
	hoursOnly     = regexp.MustCompile(`\b(?:for\s+)?(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	minutesOnly   = regexp.MustCompile(`\b(?:for\s+)?(\d+)\s*(?:minutes?|mins?|m)\b`)
	hourAndHalf   = regexp.MustCompile(`\b(?:for\s+)?(?:an|one)\s+hour\s+and\s+a\s+half\b`)
	halfHour      = regexp.MustCompile(`\b(?:for\s+)?(?:half\s+an\s+hour|a\s+half\s+hour|half\s+hour)\b`)
	coupleHours   = regexp.MustCompile(`\b(?:for\s+)?a\s+couple\s+(?:of\s+)?hours\b`)
	anHour        = regexp.MustCompile(`\b(?:for\s+)?(?:an|one)\s+hour\b`)

	timeRange   = regexp.MustCompile(`\b(?:from\s+|between\s+)?(\d{1,2})(?::([0-5]\d))?\s*(am|pm)?\s*(?:-|–|to|until|till|and)\s*(\d{1,2})(?::([0-5]\d))?\s*(am|pm)?\b`)
	meridiem    = regexp.MustCompile(`\b(?:at\s+|around\s+)?(\d{1,2})(?::([0-5]\d))?\s*(am|pm)\b`)
	clock24     = regexp.MustCompile(`\b(?:at\s+|around\s+)?(\d{1,2}):([0-5]\d)\b`)
	bareAt      = regexp.MustCompile(`\b(?:at|around)\s+(\d{1,2})\b`)
	noonWord    = regexp.MustCompile(`\b(?:at\s+)?noon\b`)
	partOfDay   = regexp.MustCompile(`\b(?:this\s+|in\s+the\s+)?(morning|afternoon|evening)\b`)
	defaultTime = clock{h: 9}
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var partClocks = map[string]clock{
	"morning":   {h: 9},
	"afternoon": {h: 14},
	"evening":   {h: 18},
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", calendar.ErrParse, fmt.Sprintf(format, args...))
}

func (r *Rules) Parse(ctx context.Context, text string, now time.Time) (calendar.ProposedEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return calendar.ProposedEvent{}, fmt.Errorf("%w: text is required", calendar.ErrValidation)
	}
	now = now.In(r.loc)
	s := newScan(text)

	class, _ := learning.ExtractClass(text)
	typ, _ := learning.ExtractAssignmentType(text)
	for _, sp := range learning.ClassSpans(text) {
		s.mask(sp[0], sp[1])
	}

	var (
		start      time.Time
		haveStart  bool
		date       *dateHit
		tm         *clock
		rangeLen   time.Duration
		haveRange  bool
		explicitDt bool
	)

	if loc := s.find(relativeStart); loc != nil {
		n, _ := strconv.Atoi(s.group(loc, 1))
		unit := time.Minute
		if strings.HasPrefix(s.group(loc, 2), "h") {
			unit = time.Hour
		}
		start, haveStart = now.Add(time.Duration(n)*unit).Truncate(time.Minute), true
		s.consume(loc[0], loc[1])
	}

	if !haveStart {
		if loc := s.find(isoDateTime); loc != nil {
			d, err := r.ymd(s.group(loc, 1), s.group(loc, 2), s.group(loc, 3))
			if err != nil {
				return calendar.ProposedEvent{}, err
			}
			h, _ := strconv.Atoi(s.group(loc, 4))
			m, _ := strconv.Atoi(s.group(loc, 5))
			if h > 23 {
				return calendar.ProposedEvent{}, parseErr("invalid hour %d", h)
			}
			date, tm, explicitDt = &dateHit{day: d}, &clock{h: h, m: m}, true
			s.consume(loc[0], loc[1])
		}
	}

	if !haveStart && date == nil {
		d, err := r.findDate(s, now)
		if err != nil {
			return calendar.ProposedEvent{}, err
		}
		date = d
	}

	dur, haveDur, err := findDuration(s)
	if err != nil {
		return calendar.ProposedEvent{}, err
	}

	if !haveStart && !explicitDt {
		from, to, ok, err := findRange(s)
		if err != nil {
			return calendar.ProposedEvent{}, err
		}
		if ok {
			tm = &from
			rangeLen = clockSpan(from, to)
			haveRange = true
		} else {
			t, err := findTime(s)
			if err != nil {
				return calendar.ProposedEvent{}, err
			}
			tm = t
		}
	}

	if haveRange && haveDur && dur != rangeLen {
		return calendar.ProposedEvent{}, parseErr("time range and duration disagree")
	}

	if !haveStart {
		start, err = r.resolveStart(date, tm, now)
		if err != nil {
			return calendar.ProposedEvent{}, err
		}
	}

	switch {
	case haveRange:
		dur = rangeLen
	case haveDur:
	default:
		dur = r.defaultDuration
		if r.hints != nil && typ != "" {
			if d, ok := r.hints.SuggestDuration(ctx, class, typ); ok {
				dur = d
			}
		}
	}

	summary := s.summary()
	if summary == "" {
		summary = "New event"
	}
	return calendar.ProposedEvent{Summary: summary, Start: start, End: start.Add(dur)}, nil
}

// resolveStart combines the date and time phrases and keeps the result out
// of the past.
func (r *Rules) resolveStart(date *dateHit, tm *clock, now time.Time) (time.Time, error) {
	today := calendar.StartOfDay(now)

	switch {
	case date == nil && tm == nil:
		return time.Time{}, parseErr("no date or time found")
	case date == nil:
		start := tm.on(today)
		if start.Before(now) {
			start = tm.on(today.AddDate(0, 0, 1))
		}
		return start, nil
	case tm == nil:
		implied := defaultTime
		if date.soft != nil {
			implied = *date.soft
		}
		start := implied.on(date.day)
		if start.Before(now) && calendar.SameDay(date.day, now) {
			return ceilQuarter(now), nil
		}
		return r.roll(start, date.roll, now)
	default:
		c := *tm
		if date.soft != nil && date.soft.h >= 12 && c.h < 12 {
			c.h += 12
		}
		return r.roll(c.on(date.day), date.roll, now)
	}
}

func (r *Rules) roll(start time.Time, roll rollover, now time.Time) (time.Time, error) {
	if !start.Before(now) {
		return start, nil
	}
	switch roll {
	case rollWeek:
		return start.AddDate(0, 0, 7), nil
	case rollYear:
		return start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, parseErr("%s is in the past", start.Format("Mon Jan 2 15:04"))
	}
}

func ceilQuarter(t time.Time) time.Time {
	q := t.Truncate(15 * time.Minute)
	if q.Before(t) {
		q = q.Add(15 * time.Minute)
	}
	return q
}

func (r *Rules) ymd(ys, ms, ds string) (time.Time, error) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	return r.date(y, time.Month(m), d)
}

func (r *Rules) date(y int, m time.Month, d int) (time.Time, error) {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, parseErr("invalid date %d-%02d-%02d", y, m, d)
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	if t.Month() != m {
		return time.Time{}, parseErr("invalid date %d-%02d-%02d", y, m, d)
	}
	return t, nil
}

// findDate consumes the first date phrase, most specific patterns first.
func (r *Rules) findDate(s *scan, now time.Time) (*dateHit, error) {
	today := calendar.StartOfDay(now)

	if loc := s.find(isoDate); loc != nil {
		d, err := r.ymd(s.group(loc, 1), s.group(loc, 2), s.group(loc, 3))
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return &dateHit{day: d}, nil
	}

	if loc := s.find(monthDate); loc != nil {
		m := months[s.group(loc, 1)[:3]]
		day, _ := strconv.Atoi(s.group(loc, 2))
		hit, err := r.monthDay(now, s.group(loc, 3), m, day)
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return hit, nil
	}

	if loc := s.find(slashDate); loc != nil {
		m, _ := strconv.Atoi(s.group(loc, 1))
		day, _ := strconv.Atoi(s.group(loc, 2))
		hit, err := r.monthDay(now, s.group(loc, 3), time.Month(m), day)
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return hit, nil
	}

	if loc := s.find(dayAfter); loc != nil {
		s.consume(loc[0], loc[1])
		return &dateHit{day: today.AddDate(0, 0, 2)}, nil
	}

	if loc := s.find(inDays); loc != nil {
		n, _ := strconv.Atoi(s.group(loc, 1))
		if strings.HasPrefix(s.group(loc, 2), "week") {
			n *= 7
		}
		s.consume(loc[0], loc[1])
		return &dateHit{day: today.AddDate(0, 0, n)}, nil
	}

	if loc := s.find(nextWeek); loc != nil {
		ahead := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		s.consume(loc[0], loc[1])
		return &dateHit{day: today.AddDate(0, 0, ahead)}, nil
	}

	if loc := s.find(relativeDay); loc != nil {
		s.consume(loc[0], loc[1])
		switch s.group(loc, 1) {
		case "tomorrow":
			return &dateHit{day: today.AddDate(0, 0, 1)}, nil
		case "tonight":
			return &dateHit{day: today, soft: &clock{h: 20}}, nil
		default:
			return &dateHit{day: today}, nil
		}
	}

	if loc := s.find(weekdayName); loc != nil {
		wd := weekdays[s.group(loc, 2)]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && s.group(loc, 1) == "next" {
			ahead = 7
		}
		s.consume(loc[0], loc[1])
		return &dateHit{day: today.AddDate(0, 0, ahead), roll: rollWeek}, nil
	}

	return nil, nil
}

// monthDay resolves a month and day with an optional year. Without a year
// the date may roll into next year.
func (r *Rules) monthDay(now time.Time, yearStr string, m time.Month, day int) (*dateHit, error) {
	if yearStr == "" {
		d, err := r.date(now.Year(), m, day)
		if err != nil {
			return nil, err
		}
		return &dateHit{day: d, roll: rollYear}, nil
	}
	y, _ := strconv.Atoi(yearStr)
	if len(yearStr) == 2 {
		y += 2000
	}
	d, err := r.date(y, m, day)
	if err != nil {
		return nil, err
	}
	return &dateHit{day: d}, nil
}

// findDuration consumes an explicit duration. Vague amounts are an error.
func findDuration(s *scan) (time.Duration, bool, error) {
	if loc := s.find(rangeHours); loc != nil {
		lo, _ := strconv.ParseFloat(s.group(loc, 1), 64)
		hi, _ := strconv.ParseFloat(s.group(loc, 2), 64)
		s.consume(loc[0], loc[1])
		return positive(time.Duration((lo + hi) / 2 * float64(time.Hour)).Round(time.Minute))
	}
	if loc := s.find(hoursMinutes); loc != nil {
		h, _ := strconv.Atoi(s.group(loc, 1))
		m, _ := strconv.Atoi(s.group(loc, 2))
		s.consume(loc[0], loc[1])
		return positive(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	if loc := s.find(hoursOnly); loc != nil {
		h, _ := strconv.ParseFloat(s.group(loc, 1), 64)
		s.consume(loc[0], loc[1])
		return positive(time.Duration(h * float64(time.Hour)).Round(time.Minute))
	}
	if loc := s.find(minutesOnly); loc != nil {
		m, _ := strconv.Atoi(s.group(loc, 1))
		s.consume(loc[0], loc[1])
		return positive(time.Duration(m) * time.Minute)
	}
	if loc := s.find(hourAndHalf); loc != nil {
		s.consume(loc[0], loc[1])
		return 90 * time.Minute, true, nil
	}
	if loc := s.find(halfHour); loc != nil {
		s.consume(loc[0], loc[1])
		return 30 * time.Minute, true, nil
	}
	if loc := s.find(coupleHours); loc != nil {
		s.consume(loc[0], loc[1])
		return 2 * time.Hour, true, nil
	}
	if loc := s.find(vagueDuration); loc != nil {
		return 0, false, parseErr("ambiguous duration %q", strings.TrimSpace(s.group(loc, 0)))
	}
	if loc := s.find(anHour); loc != nil {
		s.consume(loc[0], loc[1])
		return time.Hour, true, nil
	}
	return 0, false, nil
}

func positive(d time.Duration) (time.Duration, bool, error) {
	if d <= 0 {
		return 0, false, parseErr("duration must be positive")
	}
	return d, true, nil
}

// findRange consumes "2-4pm", "from 9 to 11am", "14:00-15:30". A range
// needs a meridiem or clock-style minutes on at least one side.
func findRange(s *scan) (clock, clock, bool, error) {
	for _, loc := range s.findAll(timeRange) {
		sh, sm, smer := s.group(loc, 1), s.group(loc, 2), s.group(loc, 3)
		eh, em, emer := s.group(loc, 4), s.group(loc, 5), s.group(loc, 6)
		if smer == "" && emer == "" && (sm == "" || em == "") {
			continue
		}

		var from, to clock
		var err error
		switch {
		case smer != "" && emer != "":
			if from, err = toClock(sh, sm, smer); err == nil {
				to, err = toClock(eh, em, emer)
			}
		case emer != "":
			if to, err = toClock(eh, em, emer); err != nil {
				break
			}
			if from, err = toClock(sh, sm, emer); err == nil && !before(from, to) && emer == "pm" {
				from, err = toClock(sh, sm, "am")
			}
		case smer != "":
			if from, err = toClock(sh, sm, smer); err != nil {
				break
			}
			if to, err = toClock(eh, em, smer); err == nil && !before(from, to) {
				to, err = toClock(eh, em, flip(smer))
			}
		default:
			if from, err = bareClock(sh, sm); err == nil {
				to, err = bareClock(eh, em)
			}
		}
		if err != nil {
			return clock{}, clock{}, false, err
		}
		s.consume(loc[0], loc[1])
		return from, to, true, nil
	}
	return clock{}, clock{}, false, nil
}

// findTime consumes a single time of day.
func findTime(s *scan) (*clock, error) {
	if loc := s.find(meridiem); loc != nil {
		c, err := toClock(s.group(loc, 1), s.group(loc, 2), s.group(loc, 3))
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return &c, nil
	}
	if loc := s.find(clock24); loc != nil {
		c, err := bareClock(s.group(loc, 1), s.group(loc, 2))
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return &c, nil
	}
	if loc := s.find(noonWord); loc != nil {
		s.consume(loc[0], loc[1])
		return &clock{h: 12}, nil
	}
	if loc := s.find(bareAt); loc != nil {
		c, err := bareClock(s.group(loc, 1), "")
		if err != nil {
			return nil, err
		}
		s.consume(loc[0], loc[1])
		return &c, nil
	}
	if loc := s.find(partOfDay); loc != nil {
		c := partClocks[s.group(loc, 1)]
		s.consume(loc[0], loc[1])
		return &c, nil
	}
	return nil, nil
}

// toClock converts a 12-hour time with meridiem.
func toClock(hs, ms, mer string) (clock, error) {
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	if h < 1 || h > 12 {
		return clock{}, parseErr("invalid hour %s%s", hs, mer)
	}
	h %= 12
	if mer == "pm" {
		h += 12
	}
	return clock{h: h, m: m}, nil
}

// bareClock reads a time without meridiem. Two-digit hours are taken as a
// 24-hour clock; a single digit 1-6 is afternoon and 7-9 is morning.
func bareClock(hs, ms string) (clock, error) {
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	if h > 23 {
		return clock{}, parseErr("invalid hour %s", hs)
	}
	if len(hs) == 1 && h >= 1 && h <= 6 {
		h += 12
	}
	return clock{h: h, m: m}, nil
}

func before(a, b clock) bool {
	return a.h*60+a.m < b.h*60+b.m
}

func flip(mer string) string {
	if mer == "am" {
		return "pm"
	}
	return "am"
}

// clockSpan is the length of from..to, wrapping past midnight.
func clockSpan(from, to clock) time.Duration {
	d := time.Duration((to.h*60+to.m)-(from.h*60+from.m)) * time.Minute
	if d <= 0 {
		d += 24 * time.Hour
	}
	return d
}
