package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/pkg/domain"
)

type nodes struct {
	Components
}

// intake rehydrates the live flow for the session, if any.
// A confirmation left pending by a free-text turn is superseded.
func (n *nodes) intake(ctx context.Context, turn *domain.Turn) error {
	if turn.Request.Resume != nil {
		return nil
	}
	s, err := n.Sessions.Active(ctx, turn.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil {
		if turn.Request.Echo != nil {
			turn.Fail(domain.StatusExpired, &domain.Failure{
				Kind:    domain.FailureSession,
				Code:    domain.CodeExpired,
				Message: "That request is no longer active. Nothing was changed; please start again.",
			})
		}
		return nil
	}
	if s.Kind == domain.SessionConfirmation {
		if _, err := n.Sessions.Cancel(ctx, s, domain.ReasonSuperseded); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			return err
		}
		n.Logger.Info("pending confirmation superseded", "session_id", s.ID)
		return nil
	}
	turn.Session = s
	return nil
}

func (n *nodes) classifyIntent(ctx context.Context, turn *domain.Turn) error {
	hints := map[string]any{}
	if turn.Request.Page != "" {
		hints["page"] = turn.Request.Page
	}
	if turn.Request.EntityID != nil {
		hints["entity_id"] = *turn.Request.EntityID
	}
	for k, v := range turn.Request.Context {
		hints[k] = v
	}
	intent, err := n.Classifier.Classify(ctx, turn.Request.Text, hints)
	if err != nil {
		return fmt.Errorf("failed to classify intent: %w", err)
	}
	if intent == nil {
		intent = &domain.Intent{}
	}
	turn.Intent = intent
	n.Logger.Debug("intent classified", "action", intent.Action, "confidence", intent.Confidence)
	return nil
}

// resolveTarget attaches the canonical reference for actions that need one.
// A reference already resolved for the same kind (a picked option) is kept.
func (n *nodes) resolveTarget(ctx context.Context, turn *domain.Turn) error {
	spec, ok := domain.LookupAction(turn.Action())
	if !ok || spec.Target == "" {
		return nil
	}
	if turn.Resolution.Resolved() && turn.Resolution.Kind == spec.Target {
		return nil
	}
	out, err := n.Resolver.Resolve(ctx, resolver.Request{
		Kind:     spec.Target,
		Action:   spec.Name,
		CallerID: turn.Request.EntityID,
		Intent:   turn.Intent,
		Text:     turn.Request.Text,
	})
	if err != nil {
		return err
	}
	turn.Resolution = out.Resolution
	switch {
	case out.Options != nil:
		out.Options.Intent = turn.Intent
		turn.Options = out.Options
		turn.Fail(domain.StatusAmbiguous, out.Failure)
	case out.Failure != nil:
		status := domain.StatusNotFound
		if out.Failure.Code == domain.CodeNeedsClarification {
			status = domain.StatusNeedsClarification
		}
		turn.Fail(status, out.Failure)
	}
	return nil
}

func (n *nodes) wizard(ctx context.Context, turn *domain.Turn) error {
	if turn.Session.Open() && turn.Session.Kind == domain.SessionWizard {
		return n.Wizards.Continue(ctx, turn)
	}
	return n.Wizards.Start(ctx, turn)
}

// classifyRisk loads the target snapshot when the decision step did not and
// assesses the action against it.
func (n *nodes) classifyRisk(ctx context.Context, turn *domain.Turn) error {
	spec, ok := domain.LookupAction(turn.Action())
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, turn.Action())
	}
	if spec.Target != "" && turn.Resolution.Resolved() {
		res := turn.Resolution
		if turn.Snapshot == nil || turn.Snapshot.Entity.ID != res.ID || turn.Snapshot.Entity.Kind != res.Kind {
			snap, err := n.Directory.Snapshot(ctx, res.Kind, res.ID)
			if errors.Is(err, domain.ErrEntityNotFound) {
				turn.Fail(domain.StatusNotFound, &domain.Failure{
					Kind:    domain.FailureResolution,
					Code:    domain.CodeNotFound,
					Message: fmt.Sprintf("%s %d no longer exists.", res.Kind, res.ID),
				})
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to load %s %d: %w", res.Kind, res.ID, err)
			}
			turn.Snapshot = snap
		}
	}

	assessment := n.Risk.Classify(spec, turn.Snapshot)
	turn.Risk = &assessment
	if assessment.Blocking != nil {
		turn.Fail(domain.StatusBlocked, assessment.Blocking)
	}
	return nil
}

// execute runs the action and records the result on the flow that led to it.
func (n *nodes) execute(ctx context.Context, turn *domain.Turn) error {
	if err := n.Executor.Execute(ctx, turn); err != nil {
		return err
	}
	if turn.Session != nil && turn.Session.Status == domain.SessionDone && turn.Result != nil {
		done, err := n.Sessions.Complete(ctx, turn.Session, turn.Result)
		if err != nil {
			n.Logger.Warn("failed to record action result", "session_id", turn.Session.ID, "err", err)
			return nil
		}
		turn.Session = done
	}
	return nil
}
