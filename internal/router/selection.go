package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/pkg/domain"
)

var indexPattern = regexp.MustCompile(`^(?:(?:option|number|no\.?|choice|pick)\s*)?#?\s*(\d+)\.?$`)

var fillers = map[string]bool{
	"the": true, "one": true, "option": true, "at": true, "on": true,
	"please": true, "i": true, "mean": true, "meant": true, "trip": true,
}

// Pick parses a follow-up against the list: a 1-based index ("2", "option 2",
// "#2"), else an exact label, else a partial label or detail match that must be
// unique. ok is false when nothing or several options match.
func Pick(list *domain.OptionList, text string) (domain.Option, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if m := indexPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(list.Items) {
			return domain.Option{}, false
		}
		return list.Items[n-1], true
	}

	for _, it := range list.Items {
		if strings.EqualFold(it.Label, text) {
			return it, true
		}
	}

	terms := partialTerms(text)
	if len(terms) == 0 {
		return domain.Option{}, false
	}
	var found []domain.Option
	for _, it := range list.Items {
		if containsAll(strings.ToLower(it.Label+" "+it.Detail+" "+it.Action), terms) {
			found = append(found, it)
		}
	}
	if len(found) != 1 {
		return domain.Option{}, false
	}
	return found[0], true
}

func partialTerms(text string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.Trim(text, ".!?")) {
		if fillers[f] {
			continue
		}
		if hhmm, ok := resolver.NormalizeTime(f); ok {
			f = hhmm
		}
		terms = append(terms, f)
	}
	return terms
}

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// Present persists turn.Options as a selection session and suspends the turn.
func (r *Router) Present(ctx context.Context, turn *domain.Turn) error {
	list := turn.Options
	if list == nil {
		return errors.New("no options to present")
	}
	s, err := r.sessions.Open(ctx, turn.SessionID, turn.Request.UserID, domain.SessionSelection, list.Fingerprint(), list)
	if errors.Is(err, domain.ErrFlowInProgress) {
		turn.Options = nil
		turn.Fail(domain.StatusBlocked, &domain.Failure{
			Kind:    domain.FailureSession,
			Code:    domain.CodeFlowInProgress,
			Message: "Another request is already waiting for an answer on this session. Finish or cancel it first.",
		})
		return nil
	}
	if err != nil {
		return err
	}
	turn.Session = s
	turn.SessionID = s.ID
	turn.Message = list.Prompt
	if turn.Failure != nil && turn.Failure.Code == domain.CodeAmbiguous {
		turn.Status = domain.StatusAmbiguous
	} else {
		turn.Status = domain.StatusAwaitingSelection
	}
	r.logger.Info("options offered", "session_id", s.ID, "purpose", list.Purpose, "count", len(list.Items))
	return nil
}

// Collect consumes the selection session in turn.Session. On a match the session
// is claimed and the pick is injected: a target sets the resolution, a
// sub-resource sets its param and routes to risk, a suggestion sets the action
// and routes back to resolution (RouteSuggest). No match re-offers the list.
func (r *Router) Collect(ctx context.Context, turn *domain.Turn) error {
	s := turn.Session
	var list domain.OptionList
	if err := s.Decode(&list); err != nil {
		return err
	}
	text := turn.Request.Text

	if wizard.IsCancel(text) {
		cancelled, err := r.sessions.Cancel(ctx, s, domain.ReasonAborted)
		if err != nil {
			return err
		}
		turn.Session = cancelled
		turn.Status = domain.StatusCancelled
		turn.Message = "Okay, nothing was changed."
		return nil
	}

	opt, ok := Pick(&list, text)
	if !ok {
		turn.Options = &list
		turn.Status = domain.StatusAwaitingSelection
		turn.Message = fmt.Sprintf("I could not tell which one you meant by %q. Reply with the number (for example 1) or the name:\n%s",
			strings.TrimSpace(text), list.Lines())
		return nil
	}

	claimed, err := r.sessions.Claim(ctx, s)
	if errors.Is(err, domain.ErrStatusConflict) {
		turn.Fail(domain.StatusAlreadyResolved, &domain.Failure{
			Kind:    domain.FailureSession,
			Code:    domain.CodeAlreadyResolved,
			Message: "That choice was already made. Nothing was changed.",
		})
		return nil
	}
	if err != nil {
		return err
	}
	turn.Session = claimed
	for k, v := range list.Params {
		turn.Params[k] = v
	}
	r.logger.Info("option picked", "session_id", s.ID, "purpose", list.Purpose, "index", opt.Index, "id", opt.ID)

	intent := domain.Intent{Action: list.Action}
	if list.Intent != nil {
		intent = *list.Intent
	}
	intent.Confidence = 1
	intent.NeedsClarification = false
	turn.Intent = &intent

	switch list.Purpose {
	case domain.PurposeTarget:
		turn.Resolution = &domain.Resolution{Kind: list.Kind, ID: opt.ID, Label: opt.Label, Status: domain.ResolutionResolved}
	case domain.PurposeSubResource:
		turn.Resolution = list.Target
		turn.Params[ParamFor(list.Kind)] = opt.ID
		turn.Route = domain.RouteRisk
	case domain.PurposeSuggestion:
		intent.Action = opt.Action
		turn.Route = domain.RouteSuggest
	}
	return nil
}
