package learning

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var classPattern = regexp.MustCompile(`\b([A-Z]{2,4})\s*(\d{3,4})\b`)

// Letter groups that look like course codes but are dates or filler words.
var notClassPrefix = map[string]bool{
	"IN": true, "ON": true, "AT": true, "BY": true, "TO": true, "FOR": true,
	"THE": true, "AND": true, "FROM": true, "ABOUT": true, "YEAR": true,
	"JAN": true, "FEB": true, "MAR": true, "APR": true, "MAY": true, "JUN": true,
	"JUNE": true, "JUL": true, "JULY": true, "AUG": true, "SEP": true, "SEPT": true,
	"OCT": true, "NOV": true, "DEC": true,
}

// ExtractClass finds a course code such as "cs101" or "ECEN 380" and returns
// it normalized to "CS 101".
func ExtractClass(text string) (string, bool) {
	for _, m := range classPattern.FindAllStringSubmatch(strings.ToUpper(text), -1) {
		if notClassPrefix[m[1]] {
			continue
		}
		return m[1] + " " + m[2], true
	}
	return "", false
}

// ClassSpans returns the byte ranges of course codes in text.
func ClassSpans(text string) [][]int {
	upper := asciiUpper(text)
	var out [][]int
	for _, loc := range classPattern.FindAllStringSubmatchIndex(upper, -1) {
		if notClassPrefix[upper[loc[2]:loc[3]]] {
			continue
		}
		out = append(out, []int{loc[0], loc[1]})
	}
	return out
}

// asciiUpper keeps byte offsets aligned with the input.
func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

type assignmentType struct {
	name    string
	pattern *regexp.Regexp
}

// assignmentTypes is checked in order; the first match wins.
var assignmentTypes = []assignmentType{
	{"homework", regexp.MustCompile(`(?i)\b(homework|hws?|assignments?|problem sets?|psets?)\b`)},
	{"project", regexp.MustCompile(`(?i)\bprojects?\b`)},
	{"exam", regexp.MustCompile(`(?i)\b(exams?|midterms?|finals?)\b`)},
	{"quiz", regexp.MustCompile(`(?i)\b(quiz|quizzes)\b`)},
	{"lab", regexp.MustCompile(`(?i)\blabs?\b`)},
	{"paper", regexp.MustCompile(`(?i)\b(papers?|essays?)\b`)},
	{"reading", regexp.MustCompile(`(?i)\breadings?\b`)},
	{"study", regexp.MustCompile(`(?i)\b(study|studying|review|reviewing)\b`)},
}

// ExtractAssignmentType maps keywords to a canonical assignment type.
func ExtractAssignmentType(text string) (string, bool) {
	for _, at := range assignmentTypes {
		if at.pattern.MatchString(text) {
			return at.name, true
		}
	}
	return "", false
}

var (
	hourRange = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:-|to)\s*(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	hourCount = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	minCount  = regexp.MustCompile(`(?i)(\d+)\s*(?:minutes?|mins?)\b`)
	anHour    = regexp.MustCompile(`(?i)\ban hour\b`)
)

// ExtractDuration reads "3 hours", "4-5 hours" (midpoint), "90 minutes" or
// "an hour" from feedback text.
func ExtractDuration(text string) (time.Duration, bool) {
	if m := hourRange.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return hoursToDuration((lo + hi) / 2)
	}
	if m := hourCount.FindStringSubmatch(text); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		return hoursToDuration(h)
	}
	if m := minCount.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Minute, true
	}
	if anHour.MatchString(text) {
		return time.Hour, true
	}
	return 0, false
}

func hoursToDuration(h float64) (time.Duration, bool) {
	if h <= 0 {
		return 0, false
	}
	return time.Duration(h * float64(time.Hour)).Round(time.Minute), true
}
