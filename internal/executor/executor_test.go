package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/dispatch/internal/executor"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []domain.ActionRequest
	res   domain.ActionResult
	err   error
}

func (r *recorder) Handle(_ context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	r.calls = append(r.calls, req)
	return r.res, r.err
}

type publisher struct {
	events []domain.ActionEvent
	err    error
}

func (p *publisher) Publish(_ context.Context, e domain.ActionEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func cancelTurn() *domain.Turn {
	turn := domain.NewTurn(domain.TurnRequest{SessionID: "s-1", UserID: "ops"})
	turn.Intent = &domain.Intent{Action: domain.ActionCancelTrip}
	turn.Resolution = &domain.Resolution{Kind: domain.KindTrip, ID: 101, Status: domain.ResolutionResolved}
	turn.Params["reason"] = "weather"
	return turn
}

func TestExecute_OK(t *testing.T) {
	h := &recorder{res: domain.ActionResult{OK: true, Message: "Trip cancelled.", Data: map[string]any{"bookings_cancelled": 8}}}
	pub := &publisher{}
	var hooked []string
	ex := executor.New(map[string]ports.ActionHandler{domain.ActionCancelTrip: h},
		executor.WithPublisher(pub),
		executor.WithLifecycleHooks(domain.LifecycleHooks{
			OnActionExecuted: func(_ context.Context, e *domain.ActionEvent) { hooked = append(hooked, e.Action) },
		}),
	)

	turn := cancelTurn()
	require.NoError(t, ex.Execute(context.Background(), turn))

	require.Len(t, h.calls, 1)
	assert.Equal(t, domain.ActionRequest{
		Action:     domain.ActionCancelTrip,
		TargetKind: domain.KindTrip,
		TargetID:   101,
		Params:     map[string]any{"reason": "weather"},
		UserID:     "ops",
		SessionID:  "s-1",
	}, h.calls[0])

	assert.Equal(t, domain.StatusExecuted, turn.Status)
	assert.Equal(t, "Trip cancelled.", turn.Message)
	assert.Equal(t, 8, turn.Result.Data["bookings_cancelled"])
	require.Len(t, pub.events, 1)
	assert.True(t, pub.events[0].OK)
	assert.Equal(t, []string{domain.ActionCancelTrip}, hooked)
}

func TestExecute_WizardCompletes(t *testing.T) {
	h := &recorder{res: domain.ActionResult{OK: true, Message: "Stop created."}}
	ex := executor.New(map[string]ports.ActionHandler{domain.ActionCreateStop: h})

	turn := domain.NewTurn(domain.TurnRequest{})
	turn.Wizard = &domain.WizardProgress{Type: domain.ActionCreateStop, Step: 3, Total: 3}
	require.NoError(t, ex.Execute(context.Background(), turn))
	assert.Equal(t, domain.StatusCompleted, turn.Status)
	assert.Zero(t, h.calls[0].TargetID)
}

func TestExecute_NotOKIsAFailureNotAnError(t *testing.T) {
	h := &recorder{res: domain.ActionResult{OK: false, Message: "Trip Harbor Loop is already cancelled."}}
	ex := executor.New(map[string]ports.ActionHandler{domain.ActionCancelTrip: h})

	turn := cancelTurn()
	require.NoError(t, ex.Execute(context.Background(), turn))
	assert.Equal(t, domain.StatusActionFailed, turn.Status)
	require.NotNil(t, turn.Failure)
	assert.Equal(t, domain.FailureExecution, turn.Failure.Kind)
	assert.Equal(t, domain.CodeActionFailed, turn.Failure.Code)
	assert.Equal(t, "Trip Harbor Loop is already cancelled.", turn.Message)
}

func TestExecute_HandlerError(t *testing.T) {
	h := &recorder{err: errors.New("db down")}
	ex := executor.New(map[string]ports.ActionHandler{domain.ActionCancelTrip: h})

	err := ex.Execute(context.Background(), cancelTurn())
	assert.ErrorContains(t, err, "db down")
}

func TestExecute_UnknownAction(t *testing.T) {
	ex := executor.New(nil)
	err := ex.Execute(context.Background(), cancelTurn())
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestExecute_PublishFailureIsLogged(t *testing.T) {
	h := &recorder{res: domain.ActionResult{OK: true}}
	ex := executor.New(map[string]ports.ActionHandler{domain.ActionCancelTrip: h},
		executor.WithPublisher(&publisher{err: errors.New("broker unreachable")}))

	turn := cancelTurn()
	require.NoError(t, ex.Execute(context.Background(), turn))
	assert.Equal(t, domain.StatusExecuted, turn.Status)
}

func TestRegister(t *testing.T) {
	ex := executor.New(nil)
	ex.Register(domain.ActionListTrips, ports.ActionHandlerFunc(func(context.Context, domain.ActionRequest) (domain.ActionResult, error) {
		return domain.ActionResult{OK: true}, nil
	}))
	assert.Equal(t, []string{domain.ActionListTrips}, ex.Actions())
}
