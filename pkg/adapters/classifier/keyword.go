// Package classifier provides the intent classifiers: a deterministic keyword
// matcher and an LLM-backed one.
package classifier

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/pkg/domain"
)

// Keyword matches the catalog keywords against the text. The longest matching
// keyword wins; ties go to the action listed first.
type Keyword struct{}

// NewKeyword creates a keyword classifier.
func NewKeyword() *Keyword {
	return &Keyword{}
}

var assignPattern = regexp.MustCompile(`(?i)^(?:please\s+)?assign\s+(.+?)\s+to\s+(.+)$`)

// articles are dropped before matching so "create a stop" hits "create stop".
var articles = map[string]bool{"a": true, "an": true, "the": true}

var resourceFillers = map[string]bool{
	"a": true, "an": true, "the": true, "vehicle": true, "driver": true, "new": true, "some": true,
}

// Classify implements ports.IntentClassifier.
func (k *Keyword) Classify(_ context.Context, text string, _ map[string]any) (*domain.Intent, error) {
	norm := normalize(text)
	intent := &domain.Intent{}

	spec, kw := bestMatch(norm)
	if spec == nil {
		intent.Suggestions = partialMatches(norm)
		if len(intent.Suggestions) > 0 {
			intent.Confidence = 0.3
			intent.NeedsClarification = true
		}
		intent.TargetLabel = resolver.ExtractLabel(text)
		return intent, nil
	}

	intent.Action = spec.Name
	intent.Confidence = 0.7
	if strings.Contains(kw, " ") {
		intent.Confidence = 0.9
	}
	intent.Rationale = "matched keyword " + strconv.Quote(kw)

	subject := text
	if spec.Category == domain.CategoryAssign {
		if m := assignPattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			if ref := resourceRef(m[1]); ref != "" {
				intent.Parameters = map[string]any{string(spec.Requires): ref}
			}
			subject = m[2]
		}
	}
	if spec.Target != "" {
		if t, ok := resolver.FindTime(subject); ok {
			intent.TargetTime = t
		}
		label := resolver.ExtractLabel(subject)
		if id, err := strconv.ParseInt(strings.TrimPrefix(label, "#"), 10, 64); err == nil {
			intent.TargetID = &id
		} else {
			intent.TargetLabel = label
		}
	}
	return intent, nil
}

func bestMatch(norm string) (*domain.ActionSpec, string) {
	padded := " " + norm + " "
	var best *domain.ActionSpec
	var bestKw string
	for _, spec := range domain.Actions() {
		for _, kw := range spec.Keywords {
			if len(kw) <= len(bestKw) || !strings.Contains(padded, " "+kw+" ") {
				continue
			}
			s := spec
			best, bestKw = &s, kw
		}
	}
	return best, bestKw
}

// partialMatches lists actions whose keywords start with a word of the text.
func partialMatches(norm string) []string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		words[w] = true
	}
	var out []string
	for _, spec := range domain.Actions() {
		for _, kw := range spec.Keywords {
			first, _, multi := strings.Cut(kw, " ")
			if multi && words[first] {
				out = append(out, spec.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func resourceRef(s string) string {
	var kept []string
	for _, w := range strings.Fields(s) {
		if !resourceFillers[strings.ToLower(w)] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '?', '!', ';', '"', '\'':
			return ' '
		}
		return r
	}, text)
	var kept []string
	for _, w := range strings.Fields(text) {
		if !articles[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
