// Package wizard collects the parameters of composite creation actions one step
// at a time, persisting progress between turns as a wizard session.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/session"
)

// Engine drives wizard sessions.
type Engine struct {
	sessions *session.Manager
	check    validator
	logger   *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a wizard engine. namer resolves id and list answers given by name.
func New(sessions *session.Manager, namer Namer, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		check:    validator{namer: namer, now: sessions.Now},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a wizard for the turn's action, prefilling any valid values the
// classifier extracted, and asks the first missing step.
func (e *Engine) Start(ctx context.Context, turn *domain.Turn) error {
	def, ok := Lookup(turn.Action())
	if !ok {
		return fmt.Errorf("no wizard for action %q", turn.Action())
	}

	var params map[string]any
	if turn.Intent != nil {
		params = turn.Intent.Parameters
	}
	values, err := e.prefill(ctx, def, params)
	if err != nil {
		return err
	}
	progress := &domain.WizardProgress{Type: def.Type, Total: def.Total(), Values: values}
	progress.Step = def.next(progress.Values, 0)

	s, err := e.sessions.Open(ctx, turn.SessionID, turn.Request.UserID, domain.SessionWizard, progress.Fingerprint(), progress)
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

	e.logger.Info("wizard started", "session_id", s.ID, "action", def.Type, "prefilled", len(progress.Values))
	e.suspend(turn, s, def, progress, "")
	return nil
}

// Complete reports whether params already hold a valid value for every step of
// the action's wizard, and returns them typed for the executor when they do.
func (e *Engine) Complete(ctx context.Context, action string, params map[string]any) (map[string]any, bool, error) {
	def, ok := Lookup(action)
	if !ok {
		return nil, false, nil
	}
	values, err := e.prefill(ctx, def, params)
	if err != nil {
		return nil, false, err
	}
	if def.next(values, 0) < def.Total() {
		return nil, false, nil
	}
	return typed(def, values), true, nil
}

// prefill keeps the params that validate, canonicalized.
func (e *Engine) prefill(ctx context.Context, def Definition, params map[string]any) (map[string]string, error) {
	values := make(map[string]string)
	for _, step := range def.Steps {
		raw, ok := stringify(params[step.Field])
		if !ok {
			continue
		}
		value, err := e.check.canonical(ctx, step, raw)
		if _, rejected := asInvalid(err); rejected {
			e.logger.Debug("prefill rejected", "action", def.Type, "field", step.Field, "err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		values[step.Field] = value
	}
	return values, nil
}

// Continue applies the turn's text to the wizard session in turn.Session.
// A turn left un-halted has claimed the session and carries the typed params
// for the executor.
func (e *Engine) Continue(ctx context.Context, turn *domain.Turn) error {
	s := turn.Session
	var progress domain.WizardProgress
	if err := s.Decode(&progress); err != nil {
		return err
	}
	def, ok := Lookup(progress.Type)
	if !ok {
		return fmt.Errorf("session %s holds unknown wizard %q", s.ID, progress.Type)
	}
	if progress.Values == nil {
		progress.Values = make(map[string]string)
	}
	turn.Wizard = &progress
	text := turn.Request.Text

	var asked *Step
	if progress.Step < def.Total() {
		asked = &def.Steps[progress.Step]
	}
	if aborts(text, asked) {
		cancelled, err := e.sessions.Cancel(ctx, s, domain.ReasonAborted)
		if err != nil {
			return err
		}
		turn.Session = cancelled
		turn.Status = domain.StatusCancelled
		turn.Message = fmt.Sprintf("Okay, I discarded the request to %s. Nothing was created.", def.Title)
		e.logger.Info("wizard aborted", "session_id", s.ID, "action", def.Type, "step", progress.Step)
		return nil
	}

	if progress.Step >= def.Total() {
		if !IsConfirm(text) {
			e.suspend(turn, s, def, &progress, "Please reply confirm to proceed or cancel to discard.")
			return nil
		}
		claimed, err := e.sessions.Claim(ctx, s)
		if errors.Is(err, domain.ErrStatusConflict) {
			turn.Fail(domain.StatusAlreadyResolved, &domain.Failure{
				Kind:    domain.FailureSession,
				Code:    domain.CodeAlreadyResolved,
				Message: "This request was already completed. Nothing was changed.",
			})
			return nil
		}
		if err != nil {
			return err
		}
		turn.Session = claimed
		turn.Params = typed(def, progress.Values)
		e.logger.Info("wizard completed", "session_id", s.ID, "action", def.Type)
		return nil
	}

	step := def.Steps[progress.Step]
	value, err := e.check.canonical(ctx, step, text)
	if ie, rejected := asInvalid(err); rejected {
		e.suspend(turn, s, def, &progress, capitalize(ie.Error())+".")
		return nil
	}
	if err != nil {
		return err
	}

	progress.Values[step.Field] = value
	progress.Step = def.next(progress.Values, progress.Step+1)
	advanced, err := e.sessions.Advance(ctx, s, &progress)
	if err != nil {
		return err
	}
	e.suspend(turn, advanced, def, &progress, "")
	return nil
}

// suspend records progress on the turn and asks the current step.
func (e *Engine) suspend(turn *domain.Turn, s *domain.Session, def Definition, progress *domain.WizardProgress, lead string) {
	turn.Session = s
	turn.SessionID = s.ID
	turn.Wizard = progress
	turn.Status = domain.StatusWizardInProgress

	var prompt string
	if progress.Step >= def.Total() {
		prompt = fmt.Sprintf("Ready to %s with %s. Reply confirm to proceed or cancel to discard.", def.Title, Summary(def, progress.Values))
	} else {
		prompt = fmt.Sprintf("Step %d of %d: %s", progress.Step+1, def.Total(), def.Steps[progress.Step].Prompt)
	}
	if lead != "" {
		prompt = lead + " " + prompt
	}
	turn.Message = prompt
}

// Summary renders collected values in step order, e.g. "name=Depot, latitude=skip".
func Summary(def Definition, values map[string]string) string {
	parts := make([]string, 0, len(values))
	for _, step := range def.Steps {
		if v, ok := values[step.Field]; ok {
			parts = append(parts, step.Field+"="+v)
		}
	}
	return strings.Join(parts, ", ")
}

// View is the wizard state surfaced in responses.
func View(progress *domain.WizardProgress) *domain.WizardView {
	if progress == nil {
		return nil
	}
	view := &domain.WizardView{
		Type:      progress.Type,
		Step:      progress.Step,
		Total:     progress.Total,
		Collected: make(map[string]string, len(progress.Values)),
	}
	for k, v := range progress.Values {
		view.Collected[k] = v
	}
	if def, ok := Lookup(progress.Type); ok && progress.Step < def.Total() {
		view.Field = def.Steps[progress.Step].Field
	}
	return view
}

// Types lists the wizard types, sorted.
func Types() []string {
	out := make([]string, 0, len(definitions))
	for t := range definitions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ","), true
	}
	return fmt.Sprint(v), true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
