package parser

import (
	"regexp"
	"strings"
)

// scan tracks which parts of the input have been consumed. work is an
// ASCII-lowercased copy of the text; consumed bytes are blanked so later
// patterns cannot match them. drop marks bytes excluded from the summary.
type scan struct {
	orig string
	work []byte
	drop []bool
}

func newScan(text string) *scan {
	work := []byte(text)
	for i, b := range work {
		if b >= 'A' && b <= 'Z' {
			work[i] = b + ('a' - 'A')
		}
	}
	return &scan{orig: text, work: work, drop: make([]bool, len(work))}
}

// find returns the submatch indexes of the first match of re.
func (s *scan) find(re *regexp.Regexp) []int {
	return re.FindSubmatchIndex(s.work)
}

func (s *scan) findAll(re *regexp.Regexp) [][]int {
	return re.FindAllSubmatchIndex(s.work, -1)
}

// group returns submatch i of loc, or "" when it did not participate.
func (s *scan) group(loc []int, i int) string {
	if 2*i+1 >= len(loc) || loc[2*i] < 0 {
		return ""
	}
	return string(s.work[loc[2*i]:loc[2*i+1]])
}

// consume blanks [start, end) and removes it from the summary.
func (s *scan) consume(start, end int) {
	s.mask(start, end)
	for i := start; i < end; i++ {
		s.drop[i] = true
	}
}

// mask blanks [start, end) but keeps it in the summary.
func (s *scan) mask(start, end int) {
	for i := start; i < end; i++ {
		s.work[i] = ' '
	}
}

var (
	leadingVerb = regexp.MustCompile(`(?i)^(?:please\s+)?(?:schedule|add|book|plan|put|create|set\s+up|block(?:\s+off|\s+out)?)\b(?:\s+(?:some\s+)?time\s+for\b|\s+(?:a|an|my)\b)?`)
	edgePunct   = ",.;:-–"
)

var leadingFiller = map[string]bool{
	"on": true, "at": true, "for": true, "of": true, "from": true, "to": true,
	"in": true, "by": true, "and": true,
}

var trailingFiller = map[string]bool{
	"on": true, "at": true, "for": true, "from": true, "to": true, "in": true,
	"by": true, "the": true, "this": true, "next": true, "and": true, "due": true,
	"of": true, "starting": true, "until": true, "between": true, "around": true,
}

// summary is the unconsumed text with scheduling verbs and dangling
// prepositions trimmed.
func (s *scan) summary() string {
	var b strings.Builder
	for i := 0; i < len(s.orig); i++ {
		if s.drop[i] {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s.orig[i])
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	out = strings.TrimSpace(leadingVerb.ReplaceAllString(out, ""))

	words := strings.Fields(out)
	for len(words) > 0 {
		w := strings.ToLower(strings.Trim(words[0], edgePunct))
		if w != "" && !leadingFiller[w] {
			break
		}
		words = words[1:]
	}
	for len(words) > 0 {
		w := strings.ToLower(strings.Trim(words[len(words)-1], edgePunct))
		if w != "" && !trailingFiller[w] {
			break
		}
		words = words[:len(words)-1]
	}
	out = strings.Trim(strings.Join(words, " "), edgePunct+" ")
	if out == "" {
		return ""
	}
	if c := out[0]; c >= 'a' && c <= 'z' {
		out = string(c-('a'-'A')) + out[1:]
	}
	return out
}
