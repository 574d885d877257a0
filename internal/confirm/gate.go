// Package confirm suspends risky actions behind a persisted proposal and resumes
// them when the operator confirms or declines.
//
// A confirmation session moves NONE -> PENDING -> {DONE | CANCELLED}. Confirming
// claims the row with a compare-and-set, so concurrent confirms of one proposal
// let exactly one through to the executor.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/session"
)

// Gate proposes and resumes confirmations.
type Gate struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// Option configures the Gate.
type Option func(*Gate)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates a gate over a session manager.
func New(sessions *session.Manager, opts ...Option) *Gate {
	g := &Gate{sessions: sessions, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Propose persists the pending action and suspends the turn.
func (g *Gate) Propose(ctx context.Context, turn *domain.Turn) error {
	pending := &domain.PendingAction{
		Action: turn.Action(),
		Params: turn.Params,
		UserID: turn.Request.UserID,
	}
	if r := turn.Resolution; r.Resolved() {
		pending.TargetKind = r.Kind
		pending.TargetID = r.ID
		pending.TargetLabel = r.Label
	}
	if turn.Risk != nil {
		pending.Warnings = turn.Risk.Warnings
	}

	s, err := g.sessions.Open(ctx, turn.SessionID, turn.Request.UserID, domain.SessionConfirmation, pending.Fingerprint(), pending)
	if errors.Is(err, domain.ErrFlowInProgress) {
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
	turn.Pending = pending
	turn.Status = domain.StatusConfirmationRequired
	turn.Message = Prompt(pending)
	g.logger.Info("confirmation requested", "session_id", s.ID, "action", pending.Action, "target_id", pending.TargetID)
	return nil
}

// Resume settles the pending proposal named by turn.Request.Resume. On confirm,
// the claimed proposal is loaded into the turn for the executor; every other
// outcome halts the turn with a status.
func (g *Gate) Resume(ctx context.Context, turn *domain.Turn) error {
	resume := turn.Request.Resume
	if resume == nil {
		return errors.New("resume requested without a confirmation")
	}

	s, err := g.sessions.Get(ctx, resume.SessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		turn.Fail(domain.StatusNotFound, sessionFailure(domain.CodeNotFound,
			"There is no pending confirmation for session %s.", resume.SessionID))
		return nil
	}
	if err != nil {
		return err
	}
	if s.Kind != domain.SessionConfirmation {
		turn.Fail(domain.StatusNotFound, sessionFailure(domain.CodeNotFound,
			"Session %s is not waiting for a confirmation.", s.ID))
		return nil
	}

	var pending domain.PendingAction
	if err := s.Decode(&pending); err != nil {
		return err
	}
	turn.Pending = &pending
	turn.Session = s

	if !s.Open() {
		if s.Reason == domain.ReasonExpired {
			turn.Fail(domain.StatusExpired, expiredFailure())
			return nil
		}
		turn.Fail(domain.StatusAlreadyResolved, sessionFailure(domain.CodeAlreadyResolved,
			"This request was already %s. Nothing was changed.", describeStatus(s)))
		return nil
	}

	if s.Expired(g.sessions.Now()) {
		cancelled, err := g.sessions.Cancel(ctx, s, domain.ReasonExpired)
		if err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			return err
		}
		if cancelled != nil {
			turn.Session = cancelled
		}
		turn.Fail(domain.StatusExpired, expiredFailure())
		return nil
	}

	if !resume.Confirmed {
		cancelled, err := g.sessions.Cancel(ctx, s, domain.ReasonDeclined)
		if errors.Is(err, domain.ErrStatusConflict) {
			turn.Fail(domain.StatusAlreadyResolved, sessionFailure(domain.CodeAlreadyResolved,
				"This request was already resolved. Nothing was changed."))
			return nil
		}
		if err != nil {
			return err
		}
		turn.Session = cancelled
		turn.Status = domain.StatusCancelled
		turn.Message = "Cancelled. No changes were made."
		g.logger.Info("confirmation declined", "session_id", s.ID, "action", pending.Action)
		return nil
	}

	claimed, err := g.sessions.Claim(ctx, s)
	if errors.Is(err, domain.ErrStatusConflict) {
		turn.Fail(domain.StatusAlreadyResolved, sessionFailure(domain.CodeAlreadyResolved,
			"This request was already resolved. Nothing was changed."))
		return nil
	}
	if err != nil {
		return err
	}

	turn.Session = claimed
	turn.Params = pending.Params
	if pending.TargetID != 0 {
		turn.Resolution = &domain.Resolution{
			Kind:   pending.TargetKind,
			ID:     pending.TargetID,
			Label:  pending.TargetLabel,
			Status: domain.ResolutionResolved,
		}
	}
	g.logger.Info("confirmation accepted", "session_id", s.ID, "action", pending.Action, "target_id", pending.TargetID)
	return nil
}

// Prompt renders the confirmation question for a proposal.
func Prompt(p *domain.PendingAction) string {
	var b strings.Builder
	b.WriteString("This will ")
	b.WriteString(Describe(p))
	b.WriteString(".")
	for _, w := range p.Warnings {
		b.WriteString(" ")
		b.WriteString(w)
	}
	b.WriteString(" Do you want to proceed? Confirm or decline.")
	return b.String()
}

// Describe renders the action as a verb phrase, e.g. `cancel trip "Harbor Loop"`.
func Describe(p *domain.PendingAction) string {
	spec, _ := domain.LookupAction(p.Action)
	target := fmt.Sprintf("%s %q", p.TargetKind, p.TargetLabel)
	if p.TargetLabel == "" {
		target = fmt.Sprintf("%s %d", p.TargetKind, p.TargetID)
	}
	switch spec.Category {
	case domain.CategoryCancel:
		return "cancel " + target
	case domain.CategoryRemove:
		return fmt.Sprintf("remove the %s from %s", spec.Requires, target)
	case domain.CategoryAssign:
		return fmt.Sprintf("assign a %s to %s", spec.Requires, target)
	}
	return strings.ReplaceAll(p.Action, "_", " ") + " on " + target
}

func describeStatus(s *domain.Session) string {
	switch {
	case s.Status == domain.SessionDone:
		return "confirmed"
	case s.Reason == domain.ReasonDeclined:
		return "declined"
	case s.Reason == domain.ReasonSuperseded:
		return "replaced by a newer request"
	}
	return "cancelled"
}

func expiredFailure() *domain.Failure {
	return sessionFailure(domain.CodeExpired, "This request expired before it was confirmed. Nothing was changed; please ask again.")
}

func sessionFailure(code, format string, args ...any) *domain.Failure {
	return &domain.Failure{Kind: domain.FailureSession, Code: code, Message: fmt.Sprintf(format, args...)}
}
