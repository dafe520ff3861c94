package calendar

import "time"

// PatternKey identifies a learned duration. An empty Class means the
// pattern applies to the assignment type across all classes.
type PatternKey struct {
	Class string
	Type  string
}

type Pattern struct {
	TypicalDurationHours float64   `json:"typical_duration_hours"`
	Notes                string    `json:"notes"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type FeedbackEntry struct {
	Text    string    `json:"text"`
	AddedAt time.Time `json:"added_at"`
}

// PatternSnapshot is the read-only view of the pattern store, shaped the way
// the feedback view endpoint returns it.
type PatternSnapshot struct {
	ClassPatterns          map[string]map[string]Pattern `json:"class_patterns"`
	AssignmentTypePatterns map[string]Pattern            `json:"assignment_type_patterns"`
	GeneralFeedback        []FeedbackEntry               `json:"general_feedback"`
}

func NewPatternSnapshot() PatternSnapshot {
	return PatternSnapshot{
		ClassPatterns:          map[string]map[string]Pattern{},
		AssignmentTypePatterns: map[string]Pattern{},
		GeneralFeedback:        []FeedbackEntry{},
	}
}

// Put places a keyed pattern into the nested view.
func (s *PatternSnapshot) Put(key PatternKey, p Pattern) {
	if key.Class == "" {
		s.AssignmentTypePatterns[key.Type] = p
		return
	}
	byType, ok := s.ClassPatterns[key.Class]
	if !ok {
		byType = map[string]Pattern{}
		s.ClassPatterns[key.Class] = byType
	}
	byType[key.Type] = p
}
