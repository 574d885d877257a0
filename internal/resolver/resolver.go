package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// DefaultThreshold separates "ask again" from "does not exist" for label misses.
const DefaultThreshold = 0.6

// DefaultSearchLimit caps fuzzy candidates offered in an option list.
const DefaultSearchLimit = 5

// Request is everything the tiers may look at.
type Request struct {
	Kind     domain.EntityKind
	Action   string
	CallerID *int64
	Intent   *domain.Intent
	Text     string
}

// Outcome is either a resolution, a failure, or both empty when the turn
// carried no reference at all.
type Outcome struct {
	Resolution *domain.Resolution
	Options    *domain.OptionList
	Failure    *domain.Failure
}

// Resolver maps a reference to a canonical entity id, trying tiers in order.
type Resolver struct {
	dir         ports.Directory
	threshold   float64
	searchLimit int
	extract     bool
	logger      *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithThreshold sets the confidence under which a label miss asks for clarification.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// WithSearchLimit caps fuzzy candidates.
func WithSearchLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.searchLimit = n
		}
	}
}

// WithPatternExtraction enables the raw-text tier. Use it when the classifier
// does not extract targets.
func WithPatternExtraction(enabled bool) Option {
	return func(r *Resolver) {
		r.extract = enabled
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a resolver over a directory.
func New(dir ports.Directory, opts ...Option) *Resolver {
	r := &Resolver{
		dir:         dir,
		threshold:   DefaultThreshold,
		searchLimit: DefaultSearchLimit,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the tiers in priority order and stops at the first that yields.
// Returned errors are directory failures; misses are carried in Outcome.Failure.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	intent := req.Intent
	if intent == nil {
		intent = &domain.Intent{}
	}
	var attempted string

	// Tier 1: caller-supplied id. Never falls through.
	if req.CallerID != nil {
		e, err := r.verify(ctx, req.Kind, *req.CallerID)
		if err != nil {
			return Outcome{}, err
		}
		if e == nil {
			return fail(domain.CodeNotFound, "No %s with id %d exists.", req.Kind, *req.CallerID), nil
		}
		return resolved(e, domain.TierCallerID), nil
	}

	// Tier 2: classifier id, assumed hallucination-prone.
	if intent.TargetID != nil {
		e, err := r.verify(ctx, req.Kind, *intent.TargetID)
		if err != nil {
			return Outcome{}, err
		}
		if e != nil {
			return resolved(e, domain.TierClassifierID), nil
		}
		r.logger.Debug("classifier id not verified, falling through", "kind", req.Kind, "target_id", *intent.TargetID)
		attempted = fmt.Sprintf("with id %d", *intent.TargetID)
	}

	// Tier 3: time of day.
	if req.Kind == domain.KindTrip && intent.TargetTime != "" {
		if hhmm, ok := NormalizeTime(intent.TargetTime); ok {
			out, found, err := r.byTime(ctx, req, hhmm, intent.TargetLabel, domain.TierClassifierTime)
			if err != nil || found {
				return out, err
			}
			attempted = "departing at " + hhmm
		}
	}

	// Tier 4: free-text label, exact then fuzzy.
	if label := strings.TrimSpace(intent.TargetLabel); label != "" {
		return r.byLabel(ctx, req, label, intent.Confidence, domain.TierClassifierLabel)
	}

	// Tier 5: pattern extraction from the raw text.
	if r.extract && req.Text != "" {
		if req.Kind == domain.KindTrip {
			if hhmm, ok := FindTime(req.Text); ok {
				out, found, err := r.byTime(ctx, req, hhmm, ExtractLabel(req.Text), domain.TierTextPattern)
				if err != nil || found {
					return out, err
				}
				attempted = "departing at " + hhmm
			}
		}
		if label := ExtractLabel(req.Text); label != "" {
			if id, err := strconv.ParseInt(label, 10, 64); err == nil {
				e, err := r.verify(ctx, req.Kind, id)
				if err != nil {
					return Outcome{}, err
				}
				if e != nil {
					return resolved(e, domain.TierTextPattern), nil
				}
			}
			return r.byLabel(ctx, req, label, intent.Confidence, domain.TierTextPattern)
		}
	}

	if attempted != "" {
		return r.miss(req.Kind, attempted, intent.Confidence), nil
	}
	return Outcome{}, nil
}

// ResolveNamed resolves a sub-resource reference (a name or numeric id) inline.
// It returns the single match, or the candidates when there are several.
func (r *Resolver) ResolveNamed(ctx context.Context, kind domain.EntityKind, ref string) (*domain.Entity, []domain.Entity, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil, nil
	}
	if id, err := strconv.ParseInt(strings.TrimPrefix(ref, "#"), 10, 64); err == nil {
		e, err := r.verify(ctx, kind, id)
		return e, nil, err
	}
	matches, err := r.dir.FindByLabel(ctx, kind, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up %s %q: %w", kind, ref, err)
	}
	if len(matches) == 0 {
		matches, err = r.dir.Search(ctx, kind, ref, r.searchLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to search %s %q: %w", kind, ref, err)
		}
	}
	if len(matches) == 1 {
		return &matches[0], nil, nil
	}
	return nil, matches, nil
}

func (r *Resolver) verify(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Entity, error) {
	e, err := r.dir.Get(ctx, kind, id)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify %s %d: %w", kind, id, err)
	}
	return e, nil
}

func (r *Resolver) byTime(ctx context.Context, req Request, hhmm, label string, tier int) (Outcome, bool, error) {
	matches, err := r.dir.FindByTime(ctx, hhmm)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("failed to find trips at %s: %w", hhmm, err)
	}
	if len(matches) > 1 && label != "" {
		var narrowed []domain.Entity
		for _, m := range matches {
			if strings.EqualFold(m.Label, label) {
				narrowed = append(narrowed, m)
			}
		}
		if len(narrowed) > 0 {
			matches = narrowed
		}
	}
	switch len(matches) {
	case 0:
		return Outcome{}, false, nil
	case 1:
		return resolved(&matches[0], tier), true, nil
	}
	return ambiguous(req, matches, fmt.Sprintf("%d trips depart at %s.", len(matches), hhmm)), true, nil
}

func (r *Resolver) byLabel(ctx context.Context, req Request, label string, confidence float64, tier int) (Outcome, error) {
	matches, err := r.dir.FindByLabel(ctx, req.Kind, label)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to look up %s %q: %w", req.Kind, label, err)
	}
	if len(matches) == 0 {
		matches, err = r.dir.Search(ctx, req.Kind, label, r.searchLimit)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to search %s %q: %w", req.Kind, label, err)
		}
	}
	switch len(matches) {
	case 0:
		return r.miss(req.Kind, fmt.Sprintf("matching %q", label), confidence), nil
	case 1:
		return resolved(&matches[0], tier), nil
	}
	return ambiguous(req, matches, fmt.Sprintf("I found %d %ss matching %q.", len(matches), req.Kind, label)), nil
}

func (r *Resolver) miss(kind domain.EntityKind, what string, confidence float64) Outcome {
	if confidence < r.threshold {
		return fail(domain.CodeNeedsClarification,
			"I could not find a %s %s. Could you give its name, departure time or id?", kind, what)
	}
	return fail(domain.CodeNotFound, "No %s %s exists.", kind, what)
}

func resolved(e *domain.Entity, tier int) Outcome {
	return Outcome{Resolution: &domain.Resolution{
		Kind:   e.Kind,
		ID:     e.ID,
		Label:  e.Label,
		Status: domain.ResolutionResolved,
		Tier:   tier,
	}}
}

func ambiguous(req Request, matches []domain.Entity, lead string) Outcome {
	list := &domain.OptionList{
		Purpose: domain.PurposeTarget,
		Kind:    req.Kind,
		Action:  req.Action,
		Items:   domain.OptionsFrom(matches),
	}
	list.Prompt = lead + " Which one did you mean?\n" + list.Lines()
	return Outcome{
		Resolution: &domain.Resolution{Kind: req.Kind, Status: domain.ResolutionAmbiguous},
		Options:    list,
		Failure:    &domain.Failure{Kind: domain.FailureResolution, Code: domain.CodeAmbiguous, Message: list.Prompt},
	}
}

func fail(code, format string, args ...any) Outcome {
	status := domain.ResolutionNotFound
	if code == domain.CodeNeedsClarification {
		status = domain.ResolutionNeedsClarification
	}
	return Outcome{
		Resolution: &domain.Resolution{Status: status},
		Failure:    &domain.Failure{Kind: domain.FailureResolution, Code: code, Message: fmt.Sprintf(format, args...)},
	}
}
