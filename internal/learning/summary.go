package learning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

const summaryFeedbackLimit = 10

// Summary renders learned patterns in sorted order. Only the most recent
// general feedback entries are included.
func Summary(snap calendar.PatternSnapshot) string {
	var parts []string

	if len(snap.ClassPatterns) > 0 {
		parts = append(parts, "**Learned Duration Patterns by Class:**")
		for _, class := range sortedKeys(snap.ClassPatterns) {
			byType := snap.ClassPatterns[class]
			for _, typ := range sortedKeys(byType) {
				p := byType[typ]
				parts = append(parts, fmt.Sprintf("  - %s %s: typically takes %g hours%s", class, typ, p.TypicalDurationHours, notes(p)))
			}
		}
	}

	if len(snap.AssignmentTypePatterns) > 0 {
		parts = append(parts, "\n**Learned Duration Patterns by Assignment Type:**")
		for _, typ := range sortedKeys(snap.AssignmentTypePatterns) {
			p := snap.AssignmentTypePatterns[typ]
			parts = append(parts, fmt.Sprintf("  - %s: typically takes %g hours%s", capitalize(typ), p.TypicalDurationHours, notes(p)))
		}
	}

	if len(snap.GeneralFeedback) > 0 {
		parts = append(parts, "\n**User Scheduling Preferences:**")
		entries := snap.GeneralFeedback
		if len(entries) > summaryFeedbackLimit {
			entries = entries[len(entries)-summaryFeedbackLimit:]
		}
		for _, e := range entries {
			parts = append(parts, "  - "+e.Text)
		}
	}

	return strings.Join(parts, "\n")
}

func notes(p calendar.Pattern) string {
	if p.Notes == "" {
		return ""
	}
	return " (" + p.Notes + ")"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
