// Package report turns the final state of a turn into the uniform response.
package report

import (
	"context"
	"log/slog"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/pkg/domain"
)

// FallbackMessage is shown for every engine failure; the cause is only logged.
const FallbackMessage = "Something went wrong while processing your request. No further changes were made; please try again."

var defaultMessages = map[domain.TurnStatus]string{
	domain.StatusExecuted:             "Done.",
	domain.StatusCompleted:            "Done.",
	domain.StatusCancelled:            "Cancelled. No changes were made.",
	domain.StatusConfirmationRequired: "Please confirm or decline.",
	domain.StatusAwaitingInput:        "Could you tell me a little more about what you need?",
	domain.StatusActionFailed:         "The action could not be completed.",
	domain.StatusError:                FallbackMessage,
}

// Reporter builds responses for turns that ended without an engine error.
type Reporter struct {
	logger *slog.Logger
}

// Fallback builds the safe response for engine errors.
type Fallback struct {
	logger *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Option configures the Reporter and the Fallback.
type Option func(*options)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func apply(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewReporter creates a reporter.
func NewReporter(opts ...Option) *Reporter {
	return &Reporter{logger: apply(opts).logger}
}

// NewFallback creates a fallback handler.
func NewFallback(opts ...Option) *Fallback {
	return &Fallback{logger: apply(opts).logger}
}

// Report writes turn.Response. An engine error takes precedence over every
// other outcome, then a pending confirmation, then an active wizard.
func (r *Reporter) Report(ctx context.Context, turn *domain.Turn) error {
	if turn.Err != nil {
		return NewFallback(WithLogger(r.logger)).Handle(ctx, turn)
	}
	if turn.Status == "" {
		turn.Status = domain.StatusAwaitingInput
	}

	resp := base(turn)
	switch {
	case turn.Status == domain.StatusConfirmationRequired:
		resp.NeedsConfirmation = true
		if turn.Pending != nil {
			resp.Warnings = turn.Pending.Warnings
		}
	case turn.Status == domain.StatusWizardInProgress:
		resp.WizardActive = true
		resp.Wizard = wizard.View(turn.Wizard)
	}
	if turn.Options != nil && (turn.Status == domain.StatusAwaitingSelection || turn.Status == domain.StatusAmbiguous) {
		resp.Options = turn.Options.Items
	}
	if turn.Result != nil && len(turn.Result.Data) > 0 {
		resp.Data = turn.Result.Data
	}
	if turn.Failure != nil {
		resp.ErrorCode = turn.Failure.Code
	}
	resp.Success = domain.SuccessStatuses[resp.Status]

	turn.Response = resp
	r.logger.Debug("turn reported",
		"session_id", turn.SessionID,
		"action", resp.Action,
		"status", resp.Status,
		"success", resp.Success,
	)
	return nil
}

// Handle writes the safe response for turn.Err.
func (f *Fallback) Handle(ctx context.Context, turn *domain.Turn) error {
	code := string(domain.CodeNodeError)
	if turn.Err != nil {
		code = string(turn.Err.Code)
		f.logger.Error("engine failure",
			"session_id", turn.SessionID,
			"node", turn.Err.NodeID,
			"code", turn.Err.Code,
			"err", turn.Err.Cause,
		)
	}
	turn.Status = domain.StatusError
	turn.Message = FallbackMessage
	resp := base(turn)
	resp.ErrorCode = code
	resp.Success = false
	turn.Response = resp
	return nil
}

func base(turn *domain.Turn) *domain.TurnResponse {
	resp := &domain.TurnResponse{
		Action:    turn.Action(),
		Status:    turn.Status,
		Message:   turn.Message,
		SessionID: turn.SessionID,
	}
	if resp.Message == "" {
		resp.Message = defaultMessages[turn.Status]
	}
	if resp.Message == "" {
		resp.Message = defaultMessages[domain.StatusAwaitingInput]
	}
	if r := turn.Resolution; r.Resolved() {
		id := r.ID
		resp.TargetID = &id
		resp.TargetLabel = r.Label
	} else if p := turn.Pending; p != nil && p.TargetID != 0 {
		id := p.TargetID
		resp.TargetID = &id
		resp.TargetLabel = p.TargetLabel
	}
	return resp
}
