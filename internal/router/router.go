// Package router picks the single branch a turn takes once its target is
// resolved, and collects the follow-up picks made against offered option lists.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/actions"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/aretw0/dispatch/pkg/session"
)

// DefaultThreshold is the action confidence under which suggestions win.
const DefaultThreshold = 0.6

// Namer resolves a sub-resource given by name or id.
type Namer interface {
	ResolveNamed(ctx context.Context, kind domain.EntityKind, ref string) (*domain.Entity, []domain.Entity, error)
}

// Completer says whether a wizard action already has every parameter.
type Completer interface {
	Complete(ctx context.Context, action string, params map[string]any) (map[string]any, bool, error)
}

// Router is the decision router and the selection collector.
type Router struct {
	dir       ports.Directory
	namer     Namer
	wizards   Completer
	sessions  *session.Manager
	threshold float64
	logger    *slog.Logger
}

// Option configures the Router.
type Option func(*Router)

// WithThreshold sets the confidence under which a classifier action is doubted.
func WithThreshold(t float64) Option {
	return func(r *Router) {
		r.threshold = t
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router.
func New(dir ports.Directory, namer Namer, wizards Completer, sessions *session.Manager, opts ...Option) *Router {
	r := &Router{
		dir:       dir,
		namer:     namer,
		wizards:   wizards,
		sessions:  sessions,
		threshold: DefaultThreshold,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide sets turn.Route. Routes that end the turn also set its status and message.
func (r *Router) Decide(ctx context.Context, turn *domain.Turn) error {
	route, err := r.decide(ctx, turn)
	if err != nil {
		return err
	}
	turn.Route = route
	r.logger.Debug("route decided", "session_id", turn.SessionID, "action", turn.Action(), "route", route)
	return nil
}

func (r *Router) decide(ctx context.Context, turn *domain.Turn) (domain.Route, error) {
	if turn.Halted() {
		return domain.RouteHalt, nil
	}

	intent := turn.Intent
	if intent == nil {
		intent = &domain.Intent{}
	}
	spec, known := domain.LookupAction(turn.Action())
	doubtful := !known || intent.NeedsClarification || intent.Confidence < r.threshold

	if doubtful {
		if list := suggestions(intent); list != nil {
			turn.Options = list
			return domain.RouteSuggest, nil
		}
	}
	if !known {
		turn.Status = domain.StatusAwaitingInput
		turn.Message = "What would you like to do? For example: \"cancel the Harbor Loop trip\", " +
			"\"assign a vehicle to the 8am trip\" or \"create a stop\"."
		return domain.RouteAskInput, nil
	}

	if spec.Wizard {
		params, complete, err := r.wizards.Complete(ctx, spec.Name, intent.Parameters)
		if err != nil {
			return domain.RouteNone, err
		}
		if !complete {
			return domain.RouteWizard, nil
		}
		for k, v := range params {
			turn.Params[k] = v
		}
		return domain.RouteRisk, nil
	}

	if spec.Target != "" && !turn.Resolution.Resolved() {
		turn.Status = domain.StatusAwaitingInput
		turn.Message = fmt.Sprintf("Which %s do you mean? Give its name, departure time or id.", spec.Target)
		if spec.Target != domain.KindTrip {
			turn.Message = fmt.Sprintf("Which %s do you mean? Give its name or id.", spec.Target)
		}
		return domain.RouteAskInput, nil
	}

	if spec.Category == domain.CategoryAssign && spec.Requires != "" {
		return r.subResource(ctx, turn, spec, intent)
	}
	return domain.RouteRisk, nil
}

// subResource fills the vehicle or driver of an assign action, inline when the
// request named one, or by offering the available ones.
func (r *Router) subResource(ctx context.Context, turn *domain.Turn, spec domain.ActionSpec, intent *domain.Intent) (domain.Route, error) {
	param := ParamFor(spec.Requires)
	if turn.Params[param] != nil {
		return domain.RouteRisk, nil
	}

	// Occupied slots and cancelled trips go straight to the risk classifier, which blocks them.
	snap, err := r.dir.Snapshot(ctx, turn.Resolution.Kind, turn.Resolution.ID)
	if err != nil {
		return domain.RouteNone, fmt.Errorf("failed to load %s %d: %w", turn.Resolution.Kind, turn.Resolution.ID, err)
	}
	turn.Snapshot = snap
	occupied := (spec.Requires == domain.KindVehicle && snap.Vehicle != nil) || (spec.Requires == domain.KindDriver && snap.Driver != nil)
	if occupied || snap.Entity.Status == domain.EntityCancelled {
		return domain.RouteRisk, nil
	}

	var candidates []domain.Entity
	if ref := reference(intent, spec.Requires); ref != "" {
		e, matches, err := r.namer.ResolveNamed(ctx, spec.Requires, ref)
		if err != nil {
			return domain.RouteNone, err
		}
		if e != nil {
			turn.Params[param] = e.ID
			return domain.RouteRisk, nil
		}
		candidates = matches
		r.logger.Debug("sub-resource not resolved inline", "kind", spec.Requires, "ref", ref, "candidates", len(matches))
	}

	lead := fmt.Sprintf("Which %s should I assign to %s?", spec.Requires, turn.Resolution.Label)
	if len(candidates) == 0 {
		available, err := r.dir.Available(ctx, spec.Requires)
		if err != nil {
			return domain.RouteNone, fmt.Errorf("failed to list available %ss: %w", spec.Requires, err)
		}
		if len(available) == 0 {
			turn.Fail(domain.StatusBlocked, &domain.Failure{
				Kind:    domain.FailurePolicy,
				Code:    domain.CodeNotFound,
				Message: fmt.Sprintf("No %ss are available right now.", spec.Requires),
			})
			return domain.RouteHalt, nil
		}
		candidates = available
		lead = fmt.Sprintf("Which %s should I assign to %s? These are available:", spec.Requires, turn.Resolution.Label)
	}

	list := &domain.OptionList{
		Purpose: domain.PurposeSubResource,
		Kind:    spec.Requires,
		Action:  spec.Name,
		Items:   domain.OptionsFrom(candidates),
		Target:  turn.Resolution,
		Params:  turn.Params,
	}
	list.Prompt = lead + "\n" + list.Lines()
	turn.Options = list
	return domain.RouteSelectEntity, nil
}

// ParamFor names the parameter that carries a sub-resource id.
func ParamFor(kind domain.EntityKind) string {
	if kind == domain.KindDriver {
		return actions.ParamDriverID
	}
	return actions.ParamVehicleID
}

// reference finds how the request named the sub-resource, e.g. "vehicle_id": 202 or "vehicle": "Bus 7".
func reference(intent *domain.Intent, kind domain.EntityKind) string {
	for _, key := range []string{ParamFor(kind), string(kind)} {
		switch v := intent.Parameters[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%d", int64(v))
		case int64:
			return fmt.Sprintf("%d", v)
		case int:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}

func suggestions(intent *domain.Intent) *domain.OptionList {
	var items []domain.Option
	seen := make(map[string]bool)
	for _, name := range intent.Suggestions {
		spec, ok := domain.LookupAction(name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		items = append(items, domain.Option{Index: len(items) + 1, Label: spec.Description, Action: name})
	}
	if len(items) == 0 {
		return nil
	}
	carried := *intent
	carried.Suggestions = nil
	list := &domain.OptionList{Purpose: domain.PurposeSuggestion, Items: items, Intent: &carried}
	list.Prompt = "I'm not sure what you want to do. Did you mean:\n" + list.Lines()
	return list
}
