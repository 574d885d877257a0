package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/internal/router"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*router.Router, *session.Manager) {
	t.Helper()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	fleet := memory.SeedFleet()
	mgr := session.NewManager(memory.NewStore(), session.WithClock(func() time.Time { return now }))
	res := resolver.New(fleet)
	return router.New(fleet, res, wizard.New(mgr, res), mgr), mgr
}

func turnFor(intent *domain.Intent, res *domain.Resolution) *domain.Turn {
	turn := domain.NewTurn(domain.TurnRequest{Text: "do it", SessionID: "sel-1"})
	turn.Intent = intent
	turn.Resolution = res
	return turn
}

func trip(id int64, label string) *domain.Resolution {
	return &domain.Resolution{Kind: domain.KindTrip, ID: id, Label: label, Status: domain.ResolutionResolved}
}

func TestDecide(t *testing.T) {
	ctx := context.Background()

	t.Run("Resolution Failure Halts", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionCancelTrip, Confidence: 0.9}, nil)
		turn.Fail(domain.StatusNotFound, &domain.Failure{Kind: domain.FailureResolution, Code: domain.CodeNotFound, Message: "No trip."})
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteHalt, turn.Route)
	})

	t.Run("Unknown Action Suggests", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{
			Action:      "reroute_trip",
			TargetLabel: "Harbor Loop",
			Suggestions: []string{domain.ActionCancelTrip, "bogus", domain.ActionGetTripStatus},
		}, nil)
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteSuggest, turn.Route)
		require.NotNil(t, turn.Options)
		assert.Equal(t, domain.PurposeSuggestion, turn.Options.Purpose)
		require.Len(t, turn.Options.Items, 2)
		assert.Equal(t, domain.ActionCancelTrip, turn.Options.Items[0].Action)
		assert.Equal(t, "Harbor Loop", turn.Options.Intent.TargetLabel)
	})

	t.Run("Low Confidence With Suggestions", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{
			Action: domain.ActionCancelTrip, Confidence: 0.3, Suggestions: []string{domain.ActionRemoveDriver},
		}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteSuggest, turn.Route)
	})

	t.Run("Unreported Confidence Counts As Low", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{
			Action: domain.ActionCancelTrip, Suggestions: []string{domain.ActionGetTripStatus},
		}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteSuggest, turn.Route)
	})

	t.Run("Unreported Confidence Without Suggestions Proceeds", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionCancelTrip}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteRisk, turn.Route)
	})

	t.Run("No Action Asks", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{}, nil)
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteAskInput, turn.Route)
		assert.Equal(t, domain.StatusAwaitingInput, turn.Status)
	})

	t.Run("Wizard Incomplete", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionCreateStop, Parameters: map[string]any{"name": "Depot"}, Confidence: 0.9}, nil)
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteWizard, turn.Route)
	})

	t.Run("Wizard Complete", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionCreateStop, Confidence: 0.9, Parameters: map[string]any{
			"name": "Depot", "latitude": "skip", "longitude": 12.5,
		}}, nil)
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteRisk, turn.Route)
		assert.Equal(t, "Depot", turn.Params["name"])
		assert.Equal(t, 12.5, turn.Params["longitude"])
	})

	t.Run("Missing Target", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionCancelTrip, Confidence: 0.9}, nil)
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteAskInput, turn.Route)
		assert.Contains(t, turn.Message, "Which trip")
	})

	t.Run("Sub-Resource Named Inline", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionAssignVehicle, Confidence: 0.9,
			Parameters: map[string]any{"vehicle": "Bus 7"}}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteRisk, turn.Route)
		assert.Equal(t, memory.SeedVehicleBus7, turn.Params["vehicle_id"])
	})

	t.Run("Sub-Resource Offered", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionAssignVehicle, Confidence: 0.9}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteSelectEntity, turn.Route)
		require.NotNil(t, turn.Options)
		assert.Equal(t, domain.PurposeSubResource, turn.Options.Purpose)
		require.Len(t, turn.Options.Items, 2)
		assert.Equal(t, "Bus 7", turn.Options.Items[0].Label)
		assert.Equal(t, "Van 3", turn.Options.Items[1].Label)
		assert.Contains(t, turn.Options.Prompt, "Harbor Loop")
	})

	t.Run("Sub-Resource Ambiguous Name", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionAssignVehicle, Confidence: 0.9,
			Parameters: map[string]any{"vehicle": "bus"}}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteSelectEntity, turn.Route)
		assert.Len(t, turn.Options.Items, 2)
	})

	t.Run("Occupied Slot Goes To Risk", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionAssignVehicle, Confidence: 0.9}, trip(memory.SeedCityShuttle, "City Shuttle"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteRisk, turn.Route)
		require.NotNil(t, turn.Snapshot)
		assert.Equal(t, "Bus 12", turn.Snapshot.Vehicle.Label)
	})

	t.Run("Destructive Goes To Risk", func(t *testing.T) {
		r, _ := newRouter(t)
		turn := turnFor(&domain.Intent{Action: domain.ActionRemoveDriver, Confidence: 0.9}, trip(101, "Harbor Loop"))
		require.NoError(t, r.Decide(ctx, turn))
		assert.Equal(t, domain.RouteRisk, turn.Route)
	})
}
