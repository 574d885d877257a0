package router_test

import (
	"context"
	"testing"

	"github.com/aretw0/dispatch/internal/router"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func airportList() *domain.OptionList {
	list := &domain.OptionList{
		Purpose: domain.PurposeTarget,
		Kind:    domain.KindTrip,
		Action:  domain.ActionCancelTrip,
		Items: []domain.Option{
			{Index: 1, ID: memory.SeedAirportAM, Label: "Airport Express", Detail: "departs 08:00 on 2026-03-02"},
			{Index: 2, ID: memory.SeedAirportPM, Label: "Airport Express", Detail: "departs 17:30 on 2026-03-02"},
			{Index: 3, ID: memory.SeedHarborLoop, Label: "Harbor Loop", Detail: "departs 09:15 on 2026-03-02"},
		},
	}
	list.Prompt = "Which one did you mean?\n" + list.Lines()
	return list
}

func TestPick(t *testing.T) {
	list := airportList()
	tests := []struct {
		input string
		want  int64
	}{
		{"2", memory.SeedAirportPM},
		{"option 2", memory.SeedAirportPM},
		{"Option #1", memory.SeedAirportAM},
		{"#3", memory.SeedHarborLoop},
		{"3.", memory.SeedHarborLoop},
		{"harbor loop", memory.SeedHarborLoop},
		{"Airport Express", memory.SeedAirportAM},
		{"the 17:30 one", memory.SeedAirportPM},
		{"5:30pm", memory.SeedAirportPM},
		{"harbor", memory.SeedHarborLoop},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := router.Pick(list, tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	for _, bad := range []string{"0", "4", "option 9", "airport", "zebra", "the one"} {
		_, ok := router.Pick(list, bad)
		assert.False(t, ok, bad)
	}
}

func present(t *testing.T, r *router.Router, list *domain.OptionList) *domain.Turn {
	t.Helper()
	turn := domain.NewTurn(domain.TurnRequest{Text: "cancel airport express", SessionID: "sel-1"})
	turn.Options = list
	turn.Failure = &domain.Failure{Kind: domain.FailureResolution, Code: domain.CodeAmbiguous, Message: list.Prompt}
	require.NoError(t, r.Present(context.Background(), turn))
	return turn
}

func TestCollect_TargetPick(t *testing.T) {
	r, mgr := newRouter(t)
	ctx := context.Background()

	offered := present(t, r, airportList())
	assert.Equal(t, domain.StatusAmbiguous, offered.Status)
	assert.Equal(t, domain.SessionSelection, offered.Session.Kind)

	next := func(text string) *domain.Turn {
		s, err := mgr.Active(ctx, "sel-1")
		require.NoError(t, err)
		turn := domain.NewTurn(domain.TurnRequest{Text: text, SessionID: "sel-1"})
		turn.Session = s
		require.NotNil(t, s)
		require.NoError(t, r.Collect(ctx, turn))
		return turn
	}

	miss := next("the blue one")
	assert.Equal(t, domain.StatusAwaitingSelection, miss.Status)
	assert.Contains(t, miss.Message, "Reply with the number")
	assert.Contains(t, miss.Message, "2. Airport Express (departs 17:30 on 2026-03-02)")
	assert.False(t, miss.Resolution.Resolved(), "never a silent default")

	picked := next("option 2")
	assert.False(t, picked.Halted())
	require.True(t, picked.Resolution.Resolved())
	assert.Equal(t, memory.SeedAirportPM, picked.Resolution.ID)
	assert.Equal(t, domain.ActionCancelTrip, picked.Action())
	assert.Equal(t, domain.SessionDone, picked.Session.Status)

	s, err := mgr.Active(ctx, "sel-1")
	require.NoError(t, err)
	assert.Nil(t, s, "the list is discarded once consumed")
}

func collectOnce(t *testing.T, list *domain.OptionList, text string) *domain.Turn {
	t.Helper()
	r, mgr := newRouter(t)
	ctx := context.Background()
	present(t, r, list)

	s, err := mgr.Active(ctx, "sel-1")
	require.NoError(t, err)
	turn := domain.NewTurn(domain.TurnRequest{Text: text, SessionID: "sel-1"})
	turn.Session = s
	require.NoError(t, r.Collect(ctx, turn))
	return turn
}

func TestCollect_SubResource(t *testing.T) {
	list := &domain.OptionList{
		Purpose: domain.PurposeSubResource,
		Kind:    domain.KindVehicle,
		Action:  domain.ActionAssignVehicle,
		Items: []domain.Option{
			{Index: 1, ID: memory.SeedVehicleBus7, Label: "Bus 7"},
			{Index: 2, ID: memory.SeedVehicleVan3, Label: "Van 3"},
		},
		Target: &domain.Resolution{Kind: domain.KindTrip, ID: memory.SeedHarborLoop, Label: "Harbor Loop", Status: domain.ResolutionResolved},
	}

	turn := collectOnce(t, list, "van 3")
	assert.Equal(t, domain.RouteRisk, turn.Route)
	assert.Equal(t, memory.SeedVehicleVan3, turn.Params["vehicle_id"])
	assert.Equal(t, memory.SeedHarborLoop, turn.Resolution.ID)
	assert.Equal(t, domain.ActionAssignVehicle, turn.Action())
}

func TestCollect_Suggestion(t *testing.T) {
	list := &domain.OptionList{
		Purpose: domain.PurposeSuggestion,
		Items: []domain.Option{
			{Index: 1, Label: "Cancel a trip and its bookings", Action: domain.ActionCancelTrip},
			{Index: 2, Label: "Show the status of a trip", Action: domain.ActionGetTripStatus},
		},
		Intent: &domain.Intent{Action: "reroute_trip", TargetLabel: "Harbor Loop", Confidence: 0.4},
	}

	turn := collectOnce(t, list, "2")
	assert.Equal(t, domain.RouteSuggest, turn.Route)
	assert.Equal(t, domain.ActionGetTripStatus, turn.Intent.Action)
	assert.Equal(t, "Harbor Loop", turn.Intent.TargetLabel)
	assert.Equal(t, 1.0, turn.Intent.Confidence)
}

func TestCollect_Cancel(t *testing.T) {
	turn := collectOnce(t, airportList(), "never mind")
	assert.Equal(t, domain.StatusCancelled, turn.Status)
	assert.Equal(t, domain.SessionCancelled, turn.Session.Status)
}
