package risk_test

import (
	"testing"

	"github.com/aretw0/dispatch/internal/risk"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(t *testing.T, name string) domain.ActionSpec {
	t.Helper()
	s, ok := domain.LookupAction(name)
	require.True(t, ok, name)
	return s
}

func trip(dependents int, vehicle, driver *domain.Entity) *domain.Snapshot {
	return &domain.Snapshot{
		Entity:     domain.Entity{Kind: domain.KindTrip, ID: 7, Label: "Harbor Loop", Status: domain.EntityScheduled},
		Dependents: dependents,
		Vehicle:    vehicle,
		Driver:     driver,
	}
}

var bus12 = &domain.Entity{Kind: domain.KindVehicle, ID: 201, Label: "Bus 12"}

func TestClassify(t *testing.T) {
	c := risk.New()

	tests := []struct {
		name     string
		action   string
		snap     *domain.Snapshot
		confirm  bool
		blocking string
	}{
		{"read is safe", domain.ActionGetTripStatus, trip(30, nil, nil), false, ""},
		{"create is safe", domain.ActionCreateStop, nil, false, ""},
		{"cancel without bookings", domain.ActionCancelTrip, trip(0, nil, nil), false, ""},
		{"cancel with bookings", domain.ActionCancelTrip, trip(8, nil, nil), true, ""},
		{"assign to free trip", domain.ActionAssignVehicle, trip(8, nil, nil), false, ""},
		{"assign to assigned trip", domain.ActionAssignVehicle, trip(0, bus12, nil), false, domain.CodeAlreadyAssigned},
		{"remove nothing", domain.ActionRemoveDriver, trip(3, bus12, nil), false, domain.CodeNothingToRemove},
		{"remove with bookings", domain.ActionRemoveVehicle, trip(3, bus12, nil), true, ""},
		{"remove without bookings", domain.ActionRemoveVehicle, trip(0, bus12, nil), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(spec(t, tt.action), tt.snap)
			assert.Equal(t, tt.confirm, got.NeedsConfirmation)
			if tt.blocking == "" {
				assert.Nil(t, got.Blocking)
				return
			}
			require.NotNil(t, got.Blocking)
			assert.Equal(t, tt.blocking, got.Blocking.Code)
			assert.Equal(t, domain.FailurePolicy, got.Blocking.Kind)
		})
	}
}

func TestClassify_WarningNamesCountAndPercentage(t *testing.T) {
	got := risk.New().Classify(spec(t, domain.ActionCancelTrip), trip(8, nil, nil))
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "8 confirmed bookings (20% of seat capacity) will be affected.", got.Warnings[0])
}

func TestClassify_AlreadyAssignedNamesResource(t *testing.T) {
	got := risk.New().Classify(spec(t, domain.ActionAssignVehicle), trip(0, bus12, nil))
	require.NotNil(t, got.Blocking)
	assert.Contains(t, got.Blocking.Message, "Bus 12")
	assert.False(t, got.NeedsConfirmation)
}

func TestClassify_CancelledTrip(t *testing.T) {
	snap := trip(4, nil, nil)
	snap.Entity.Status = domain.EntityCancelled

	got := risk.New().Classify(spec(t, domain.ActionCancelTrip), snap)
	require.NotNil(t, got.Blocking)
	assert.Equal(t, domain.CodeInvalidState, got.Blocking.Code)
	assert.Equal(t, `Trip "Harbor Loop" is already cancelled.`, got.Blocking.Message)
}

func TestPercent(t *testing.T) {
	c := risk.New()
	assert.Equal(t, 0, c.Percent(0))
	assert.Equal(t, 2, c.Percent(1))
	assert.Equal(t, 100, c.Percent(40))
	assert.Equal(t, 100, c.Percent(55), "capped")

	assert.Equal(t, 50, risk.New(risk.WithCapacity(10)).Percent(5))
}
