package dispatch_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/dispatch"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ActionEvent
}

func (r *recorder) Publish(_ context.Context, e domain.ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func newEngine(t *testing.T, opts ...dispatch.Option) (*dispatch.Engine, *memory.Fleet) {
	t.Helper()
	fleet := memory.SeedFleet()
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	opts = append([]dispatch.Option{
		dispatch.WithFleet(fleet, fleet.Handlers()),
		dispatch.WithClock(func() time.Time { return now }),
		dispatch.WithStrictEdges(true),
	}, opts...)
	eng, err := dispatch.New(opts...)
	require.NoError(t, err)
	return eng, fleet
}

func TestEngine_CancelWithConfirmation(t *testing.T) {
	events := &recorder{}
	eng, fleet := newEngine(t, dispatch.WithPublisher(events))
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "Cancel the Harbor Loop trip", UserID: "ops-1"})
	require.Equal(t, domain.StatusConfirmationRequired, resp.Status, resp.Message)
	assert.NotEmpty(t, resp.SessionID, "a session id is generated")
	assert.Equal(t, []string{"8 confirmed bookings (20% of seat capacity) will be affected."}, resp.Warnings)
	assert.Empty(t, events.events)

	resp = eng.Confirm(ctx, domain.ConfirmRequest{SessionID: resp.SessionID, Confirmed: true, UserID: "ops-1"})
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
	assert.EqualValues(t, 8, resp.Data["bookings_cancelled"])
	trip, _ := fleet.Trip(memory.SeedHarborLoop)
	assert.Equal(t, domain.EntityCancelled, trip.Status)

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.ActionCancelTrip, events.events[0].Action)
	assert.True(t, events.events[0].OK)

	again := eng.Confirm(ctx, domain.ConfirmRequest{SessionID: resp.SessionID, Confirmed: true})
	assert.Equal(t, domain.StatusAlreadyResolved, again.Status)
	assert.Len(t, events.events, 1, "a replayed confirmation executes nothing")
}

func TestEngine_AmbiguousThenPick(t *testing.T) {
	eng, fleet := newEngine(t)
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "cancel the Airport Express", SessionID: "s-amb"})
	require.Equal(t, domain.StatusAmbiguous, resp.Status, resp.Message)
	require.Len(t, resp.Options, 2)

	resp = eng.Process(ctx, domain.TurnRequest{Text: "option 2", SessionID: "s-amb"})
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)
	pm, _ := fleet.Trip(memory.SeedAirportPM)
	am, _ := fleet.Trip(memory.SeedAirportAM)
	assert.Equal(t, domain.EntityCancelled, pm.Status)
	assert.NotEqual(t, domain.EntityCancelled, am.Status)
}

func TestEngine_BlocksAdditiveOnAssigned(t *testing.T) {
	eng, _ := newEngine(t)

	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "assign vehicle Bus 7 to City Shuttle", SessionID: "s-blocked"})
	assert.Equal(t, domain.StatusBlocked, resp.Status)
	assert.Equal(t, domain.CodeAlreadyAssigned, resp.ErrorCode)
	assert.False(t, resp.NeedsConfirmation)
	assert.False(t, resp.Success)

	_, err := eng.Session(ctx, "s-blocked")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "a blocked action opens no session")
	list, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_NaturalPhrasings(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "create a stop", SessionID: "s-stop"})
	assert.Equal(t, domain.StatusWizardInProgress, resp.Status, resp.Message)
	require.NotNil(t, resp.Wizard)
	assert.Equal(t, domain.ActionCreateStop, resp.Wizard.Type)

	resp = eng.Process(ctx, domain.TurnRequest{Text: "assign a vehicle to Harbor Loop", SessionID: "s-assign"})
	assert.Equal(t, domain.StatusAwaitingSelection, resp.Status, resp.Message)
	assert.Equal(t, domain.ActionAssignVehicle, resp.Action)
	assert.NotEmpty(t, resp.Options)
}

func TestEngine_RejectsInvalidInput(t *testing.T) {
	eng, _ := newEngine(t)

	resp := eng.Process(context.Background(), domain.TurnRequest{Text: strings.Repeat("a", 10000), SessionID: "s-big"})
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Equal(t, domain.CodeInvalidInput, resp.ErrorCode)

	_, err := eng.Session(context.Background(), "s-big")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "rejected input never reaches the store")

	resp = eng.Confirm(context.Background(), domain.ConfirmRequest{Confirmed: true})
	assert.Equal(t, domain.CodeInvalidInput, resp.ErrorCode)
}

func TestEngine_SessionAdmin(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "create stop", SessionID: "s-wiz"})
	require.Equal(t, domain.StatusWizardInProgress, resp.Status, resp.Message)

	s, err := eng.Session(ctx, "s-wiz")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionWizard, s.Kind)

	list, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, eng.DeleteSession(ctx, "s-wiz"))
	_, err = eng.Session(ctx, "s-wiz")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_SweepExpiresAbandonedFlows(t *testing.T) {
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	fleet := memory.SeedFleet()
	eng, err := dispatch.New(
		dispatch.WithFleet(fleet, fleet.Handlers()),
		dispatch.WithClock(func() time.Time { return clock() }),
		dispatch.WithSessionLifetimes(time.Minute, time.Hour, 0),
	)
	require.NoError(t, err)
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "Cancel the Harbor Loop trip", SessionID: "s-old"})
	require.Equal(t, domain.StatusConfirmationRequired, resp.Status)

	clock = func() time.Time { return now.Add(2 * time.Minute) }
	n, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp = eng.Confirm(ctx, domain.ConfirmRequest{SessionID: "s-old", Confirmed: true})
	assert.NotEqual(t, domain.StatusExecuted, resp.Status)
	trip, _ := fleet.Trip(memory.SeedHarborLoop)
	assert.NotEqual(t, domain.EntityCancelled, trip.Status)
}

func TestEngine_ConcurrentTurnsOnOneSession(t *testing.T) {
	events := &recorder{}
	eng, _ := newEngine(t, dispatch.WithPublisher(events))
	ctx := context.Background()

	resp := eng.Process(ctx, domain.TurnRequest{Text: "Cancel the Harbor Loop trip", SessionID: "s-race"})
	require.Equal(t, domain.StatusConfirmationRequired, resp.Status)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Confirm(ctx, domain.ConfirmRequest{SessionID: "s-race", Confirmed: true})
		}()
	}
	wg.Wait()
	assert.Len(t, events.events, 1, "exactly one confirmation executes")
}

func TestEngine_MetricsHooks(t *testing.T) {
	metrics := observability.NewMetrics()
	eng, _ := newEngine(t, dispatch.WithLifecycleHooks(metrics.Hooks()))

	eng.Process(context.Background(), domain.TurnRequest{Text: "list trips"})

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dispatch_turns_total"])
	assert.True(t, names["dispatch_actions_total"])
	assert.True(t, names["dispatch_node_visits_total"])
}

func TestEngine_Introspection(t *testing.T) {
	eng, _ := newEngine(t)

	chart := eng.Mermaid()
	assert.True(t, strings.HasPrefix(chart, "graph TD"))
	assert.Contains(t, chart, "classify_risk")
	assert.Contains(t, eng.Actions(), domain.ActionCancelTrip)
	assert.Equal(t, "intake", string(eng.Graph().Entry()))
}

func TestNew_DefaultsAndValidation(t *testing.T) {
	eng, err := dispatch.New()
	require.NoError(t, err)
	resp := eng.Process(context.Background(), domain.TurnRequest{Text: "list trips"})
	assert.Equal(t, domain.StatusExecuted, resp.Status, resp.Message)

	_, err = dispatch.New(dispatch.WithFleet(memory.NewFleet(), nil))
	assert.Error(t, err)
}
