package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/aretw0/dispatch/pkg/domain"
)

var timePattern = regexp.MustCompile(`^(\d{1,2})(?:[:.h](\d{2}))?\s*(am|pm|a\.m\.?|p\.m\.?)?$`)

// NormalizeTime converts "8am", "8:30 pm", "08:00", "8.30" or "17h05" to HH:MM.
// A bare number without am/pm is not a time.
func NormalizeTime(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "noon":
		return "12:00", true
	case "midnight":
		return "00:00", true
	}
	m := timePattern.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ReplaceAll(m[3], ".", "") {
	case "am":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// FindTime returns the first time-of-day token in free text.
func FindTime(text string) (string, bool) {
	fields := tokenize(text)
	for i, f := range fields {
		if t, ok := NormalizeTime(f); ok {
			return t, true
		}
		// "8 am" split across two tokens.
		if i+1 < len(fields) {
			if t, ok := NormalizeTime(f + fields[i+1]); ok {
				return t, true
			}
		}
	}
	return "", false
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "please": true, "for": true, "to": true,
	"of": true, "on": true, "at": true, "my": true, "this": true, "that": true,
	"me": true, "can": true, "you": true, "i": true, "want": true, "would": true,
	"like": true, "show": true, "what": true, "is": true, "from": true, "now": true,
	"trip": true, "trips": true, "departure": true, "run": true,
}

// ExtractLabel strips command verbs and stop words from text and returns what
// is left as a candidate label, original casing preserved.
func ExtractLabel(text string) string {
	verbs := commandWords()
	var kept []string
	for _, tok := range tokenize(text) {
		lower := strings.ToLower(tok)
		if stopWords[lower] || verbs[lower] {
			continue
		}
		if _, ok := NormalizeTime(lower); ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// commandWords collects every word used in the action catalog keywords.
func commandWords() map[string]bool {
	words := make(map[string]bool)
	for _, spec := range domain.Actions() {
		for _, kw := range spec.Keywords {
			for _, w := range strings.Fields(kw) {
				words[w] = true
			}
		}
	}
	return words
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '?' || r == '!' || r == '"' || r == '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimRight(f, ".;:"); f != "" {
			out = append(out, f)
		}
	}
	return out
}
