package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks values of result keys matching the patterns, e.g.
// `(?i)phone` or `^driver_label$`. Payloads are left alone since pending flows
// resume from them; results are only read back for audit.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.next.Get(ctx, id)
}

func (m *piiMiddleware) Open(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	return m.next.Open(ctx, m.masked(s))
}

func (m *piiMiddleware) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	return m.next.CompareAndSwap(ctx, m.masked(next), expect)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]*domain.Session, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	return m.next.Sweep(ctx, now, retention)
}

// masked returns a copy with matching result keys masked. Results that are
// not JSON objects pass through.
func (m *piiMiddleware) masked(s *domain.Session) *domain.Session {
	if len(s.Result) == 0 || len(m.patterns) == 0 {
		return s
	}
	var doc map[string]any
	if err := json.Unmarshal(s.Result, &doc); err != nil {
		return s
	}
	maskMap(doc, m.patterns)
	data, err := json.Marshal(doc)
	if err != nil {
		return s
	}
	out := s.Clone()
	out.Result = data
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		switch sub := m[k].(type) {
		case map[string]any:
			maskMap(sub, patterns)
		case []any:
			for _, item := range sub {
				if obj, ok := item.(map[string]any); ok {
					maskMap(obj, patterns)
				}
			}
		}
	}
}
