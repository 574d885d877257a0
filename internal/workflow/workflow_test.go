package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/dispatch/internal/confirm"
	"github.com/aretw0/dispatch/internal/executor"
	"github.com/aretw0/dispatch/internal/report"
	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/internal/risk"
	"github.com/aretw0/dispatch/internal/router"
	"github.com/aretw0/dispatch/internal/runtime"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/internal/workflow"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/graph"
	"github.com/aretw0/dispatch/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted maps exact texts to intents; anything else is unknown.
type scripted struct {
	intents map[string]domain.Intent
	err     error
}

func (s scripted) Classify(_ context.Context, text string, _ map[string]any) (*domain.Intent, error) {
	if s.err != nil {
		return nil, s.err
	}
	intent := s.intents[strings.ToLower(text)]
	return &intent, nil
}

var script = scripted{intents: map[string]domain.Intent{
	"cancel harbor loop":           {Action: domain.ActionCancelTrip, TargetLabel: "Harbor Loop", Confidence: 0.9},
	"cancel airport express":       {Action: domain.ActionCancelTrip, TargetLabel: "Airport Express", Confidence: 0.9},
	"cancel night owl":             {Action: domain.ActionCancelTrip, TargetLabel: "Night Owl", Confidence: 0.9},
	"assign a bus to city shuttle": {Action: domain.ActionAssignVehicle, TargetLabel: "City Shuttle", Confidence: 0.9},
	"assign a bus to harbor loop":  {Action: domain.ActionAssignVehicle, TargetLabel: "Harbor Loop", Confidence: 0.9},
	"status of harbor loop":        {Action: domain.ActionGetTripStatus, TargetLabel: "Harbor Loop", Confidence: 0.9},
	"create a stop":                {Action: domain.ActionCreateStop, Confidence: 0.9},
	"do something to harbor loop": {
		TargetLabel: "Harbor Loop", Confidence: 0.3,
		Suggestions: []string{domain.ActionCancelTrip, domain.ActionGetTripStatus},
	},
}}

type harness struct {
	engine   *runtime.Engine
	fleet    *memory.Fleet
	sessions *session.Manager
}

func newHarness(t *testing.T, classifier scripted) *harness {
	t.Helper()
	fleet := memory.SeedFleet()
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	sessions := session.NewManager(memory.NewStore(), session.WithClock(func() time.Time { return now }))
	res := resolver.New(fleet)
	wizards := wizard.New(sessions, res)

	g, err := workflow.Build(workflow.Components{
		Sessions:   sessions,
		Directory:  fleet,
		Classifier: classifier,
		Resolver:   res,
		Risk:       risk.New(),
		Gate:       confirm.New(sessions),
		Wizards:    wizards,
		Router:     router.New(fleet, res, wizards, sessions),
		Executor:   executor.New(fleet.Handlers()),
		Reporter:   report.NewReporter(),
		Fallback:   report.NewFallback(),
	})
	require.NoError(t, err)

	engine, err := runtime.NewEngine(g,
		runtime.WithStrictEdges(true),
		runtime.WithTerminals(workflow.Report, workflow.Fallback),
	)
	require.NoError(t, err)
	return &harness{engine: engine, fleet: fleet, sessions: sessions}
}

func (h *harness) say(t *testing.T, sessionID, text string) *domain.TurnResponse {
	t.Helper()
	turn := h.engine.Run(context.Background(), domain.NewTurn(domain.TurnRequest{Text: text, SessionID: sessionID, UserID: "ops-1"}))
	require.NotNil(t, turn.Response)
	return turn.Response
}

func (h *harness) resume(t *testing.T, sessionID string, confirmed bool) *domain.TurnResponse {
	t.Helper()
	turn := h.engine.Run(context.Background(), domain.NewTurn(domain.TurnRequest{
		Resume: &domain.Resume{SessionID: sessionID, Confirmed: confirmed},
		UserID: "ops-1",
	}))
	require.NotNil(t, turn.Response)
	return turn.Response
}

func tripStatus(t *testing.T, h *harness, id int64) string {
	t.Helper()
	trip, ok := h.fleet.Trip(id)
	require.True(t, ok)
	return trip.Status
}

func TestWorkflow_CancelNeedsConfirmation(t *testing.T) {
	t.Run("Confirmed", func(t *testing.T) {
		h := newHarness(t, script)

		resp := h.say(t, "s-1", "cancel harbor loop")
		assert.Equal(t, domain.StatusConfirmationRequired, resp.Status)
		assert.True(t, resp.NeedsConfirmation)
		assert.Equal(t, []string{"8 confirmed bookings (20% of seat capacity) will be affected."}, resp.Warnings)
		assert.Equal(t, "s-1", resp.SessionID)
		assert.NotEqual(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedHarborLoop), "nothing runs before the confirmation")

		resp = h.resume(t, "s-1", true)
		assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.TargetID)
		assert.Equal(t, memory.SeedHarborLoop, *resp.TargetID)
		assert.Equal(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedHarborLoop))

		s, err := h.sessions.Get(context.Background(), "s-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SessionDone, s.Status)
		assert.NotEmpty(t, s.Result)

		again := h.resume(t, "s-1", true)
		assert.Equal(t, domain.StatusAlreadyResolved, again.Status)
		assert.False(t, again.Success)
	})

	t.Run("Declined", func(t *testing.T) {
		h := newHarness(t, script)

		h.say(t, "s-1", "cancel harbor loop")
		resp := h.resume(t, "s-1", false)
		assert.Equal(t, domain.StatusCancelled, resp.Status)
		assert.True(t, resp.Success)
		assert.NotEqual(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedHarborLoop))
	})

	t.Run("Superseded By Free Text", func(t *testing.T) {
		h := newHarness(t, script)

		h.say(t, "s-1", "cancel harbor loop")
		status := h.say(t, "s-1", "status of harbor loop")
		assert.Equal(t, domain.StatusExecuted, status.Status)

		late := h.resume(t, "s-1", true)
		assert.Equal(t, domain.StatusAlreadyResolved, late.Status)
		assert.NotEqual(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedHarborLoop))
	})
}

func TestWorkflow_AmbiguousTargetPick(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-2", "cancel airport express")
	assert.Equal(t, domain.StatusAmbiguous, resp.Status)
	require.Len(t, resp.Options, 2)
	assert.Contains(t, resp.Message, "08:00")
	assert.Contains(t, resp.Message, "17:30")

	// The evening run has no bookings, so it is cancelled without a confirmation.
	resp = h.say(t, "s-2", "option 2")
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
	require.NotNil(t, resp.TargetID)
	assert.Equal(t, memory.SeedAirportPM, *resp.TargetID)
	assert.Equal(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedAirportPM))
	assert.NotEqual(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedAirportAM))
}

func TestWorkflow_Blocked(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-3", "assign a bus to city shuttle")
	assert.Equal(t, domain.StatusBlocked, resp.Status)
	assert.Equal(t, domain.CodeAlreadyAssigned, resp.ErrorCode)
	assert.Contains(t, resp.Message, "Bus 12")
	assert.False(t, resp.Success)
	assert.False(t, resp.NeedsConfirmation)
	_, err := h.sessions.Get(context.Background(), "s-3")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "a blocked action opens no session")

	resp = h.say(t, "s-4", "cancel night owl")
	assert.Equal(t, domain.StatusBlocked, resp.Status)
	assert.Equal(t, domain.CodeInvalidState, resp.ErrorCode)
}

func TestWorkflow_SubResourceSelection(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-5", "assign a bus to harbor loop")
	assert.Equal(t, domain.StatusAwaitingSelection, resp.Status)
	require.Len(t, resp.Options, 2)
	assert.Equal(t, "Bus 7", resp.Options[0].Label)

	resp = h.say(t, "s-5", "van 3")
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
	trip, _ := h.fleet.Trip(memory.SeedHarborLoop)
	assert.Equal(t, memory.SeedVehicleVan3, trip.VehicleID)
}

func TestWorkflow_Suggestion(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-6", "do something to harbor loop")
	assert.Equal(t, domain.StatusAwaitingSelection, resp.Status)
	require.Len(t, resp.Options, 2)

	resp = h.say(t, "s-6", "2")
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
	assert.Equal(t, domain.ActionGetTripStatus, resp.Action)
	require.NotNil(t, resp.TargetID)
	assert.Equal(t, memory.SeedHarborLoop, *resp.TargetID)
}

func TestWorkflow_Wizard(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-7", "create a stop")
	assert.Equal(t, domain.StatusWizardInProgress, resp.Status)
	assert.True(t, resp.WizardActive)
	require.NotNil(t, resp.Wizard)
	assert.Equal(t, 0, resp.Wizard.Step)
	assert.Equal(t, "name", resp.Wizard.Field)

	resp = h.say(t, "s-7", "Depot")
	assert.Equal(t, "latitude", resp.Wizard.Field)

	resp = h.say(t, "s-7", "200")
	assert.Equal(t, domain.StatusWizardInProgress, resp.Status)
	assert.Equal(t, "latitude", resp.Wizard.Field, "out of range answers are asked again")
	assert.Contains(t, resp.Message, "Invalid latitude")

	h.say(t, "s-7", "-33.4")
	resp = h.say(t, "s-7", "skip")
	assert.Equal(t, domain.StatusWizardInProgress, resp.Status)
	assert.Contains(t, resp.Message, "confirm")

	resp = h.say(t, "s-7", "confirm")
	assert.Equal(t, domain.StatusCompleted, resp.Status, resp.Message)
	assert.True(t, resp.Success)
	assert.False(t, resp.WizardActive)
}

func TestWorkflow_WizardCancel(t *testing.T) {
	h := newHarness(t, script)

	h.say(t, "s-8", "create a stop")
	resp := h.say(t, "s-8", "cancel")
	assert.Equal(t, domain.StatusCancelled, resp.Status)

	s, err := h.sessions.Get(context.Background(), "s-8")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, s.Status)
	assert.Equal(t, domain.ReasonAborted, s.Reason)
}

func TestWorkflow_UnknownIntent(t *testing.T) {
	h := newHarness(t, script)

	resp := h.say(t, "s-9", "hello there")
	assert.Equal(t, domain.StatusAwaitingInput, resp.Status)
	assert.False(t, resp.Success)
}

func TestWorkflow_StaleEcho(t *testing.T) {
	h := newHarness(t, script)

	turn := h.engine.Run(context.Background(), domain.NewTurn(domain.TurnRequest{
		Text:      "Depot",
		SessionID: "gone",
		Echo:      &domain.WizardView{Type: domain.ActionCreateStop, Step: 1, Total: 3},
	}))
	assert.Equal(t, domain.StatusExpired, turn.Response.Status)
	assert.Equal(t, domain.CodeExpired, turn.Response.ErrorCode)
}

func TestWorkflow_ClassifierOutage(t *testing.T) {
	h := newHarness(t, scripted{err: errors.New("upstream timeout")})

	resp := h.say(t, "s-10", "cancel harbor loop")
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Equal(t, report.FallbackMessage, resp.Message)
	assert.NotContains(t, resp.Message, "upstream")
	assert.Equal(t, string(domain.CodeNodeError), resp.ErrorCode)
	assert.NotEqual(t, domain.EntityCancelled, tripStatus(t, h, memory.SeedHarborLoop))
}

func TestWorkflow_GuardsExclusive(t *testing.T) {
	h := newHarness(t, script)
	g := h.engine.Graph()

	resolved := &domain.Resolution{Kind: domain.KindTrip, ID: 101, Status: domain.ResolutionResolved}
	turn := func(mut func(*domain.Turn)) *domain.Turn {
		t := domain.NewTurn(domain.TurnRequest{Text: "x"})
		mut(t)
		return t
	}
	open := func(kind domain.SessionKind) *domain.Session {
		return &domain.Session{ID: "s", Kind: kind, Status: domain.SessionPending}
	}
	blocked := func(t *domain.Turn) {
		t.Fail(domain.StatusBlocked, &domain.Failure{Code: domain.CodeAlreadyAssigned})
	}

	samples := map[graph.NodeID][]*domain.Turn{
		workflow.Intake: {
			turn(func(t *domain.Turn) { t.Request.Resume = &domain.Resume{SessionID: "s"} }),
			turn(func(t *domain.Turn) { t.Session = open(domain.SessionWizard) }),
			turn(func(t *domain.Turn) { t.Session = open(domain.SessionSelection) }),
			turn(func(t *domain.Turn) { t.Status = domain.StatusExpired }),
		},
		workflow.Decide: {
			turn(func(t *domain.Turn) { t.Route = domain.RouteRisk }),
			turn(func(t *domain.Turn) { t.Route = domain.RouteSelectEntity; t.Options = &domain.OptionList{} }),
			turn(func(t *domain.Turn) { t.Route = domain.RouteSuggest; t.Options = &domain.OptionList{} }),
			turn(func(t *domain.Turn) { t.Route = domain.RouteWizard }),
			turn(func(t *domain.Turn) { t.Route = domain.RouteHalt; blocked(t) }),
		},
		workflow.CollectSelection: {
			turn(func(t *domain.Turn) { t.Route = domain.RouteRisk; t.Resolution = resolved }),
			turn(func(t *domain.Turn) { t.Route = domain.RouteSuggest }),
			turn(func(t *domain.Turn) { t.Status = domain.StatusCancelled }),
		},
		workflow.ClassifyRisk: {
			turn(func(t *domain.Turn) { t.Risk = &domain.RiskAssessment{NeedsConfirmation: true} }),
			turn(func(t *domain.Turn) { t.Risk = &domain.RiskAssessment{}; blocked(t) }),
			turn(func(t *domain.Turn) { t.Risk = &domain.RiskAssessment{} }),
		},
		workflow.ResolveTarget: {
			turn(func(t *domain.Turn) {
				t.Options = &domain.OptionList{}
				t.Fail(domain.StatusAmbiguous, &domain.Failure{Code: domain.CodeAmbiguous})
			}),
			turn(func(t *domain.Turn) { t.Resolution = resolved }),
		},
	}
	for node, turns := range samples {
		assert.NoError(t, g.CheckExclusive(node, turns...), node)
	}
}

func TestBuild_RequiresComponents(t *testing.T) {
	_, err := workflow.Build(workflow.Components{})
	assert.Error(t, err)
}
