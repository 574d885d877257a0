package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 { return &v }

func TestResolve_TierPrecedence(t *testing.T) {
	r := resolver.New(memory.SeedFleet())
	ctx := context.Background()

	// The label alone would resolve to Harbor Loop; the caller id wins.
	out, err := r.Resolve(ctx, resolver.Request{
		Kind:     domain.KindTrip,
		CallerID: id(memory.SeedCityShuttle),
		Intent:   &domain.Intent{TargetLabel: "Harbor Loop", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.True(t, out.Resolution.Resolved())
	assert.Equal(t, memory.SeedCityShuttle, out.Resolution.ID)
	assert.Equal(t, domain.TierCallerID, out.Resolution.Tier)
}

func TestResolve_CallerIDNeverFallsThrough(t *testing.T) {
	r := resolver.New(memory.SeedFleet())

	out, err := r.Resolve(context.Background(), resolver.Request{
		Kind:     domain.KindTrip,
		CallerID: id(9999),
		Intent:   &domain.Intent{TargetLabel: "Harbor Loop", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.CodeNotFound, out.Failure.Code)
	assert.Contains(t, out.Failure.Message, "9999")
	assert.False(t, out.Resolution.Resolved())
}

func TestResolve_HallucinatedIDFallsThrough(t *testing.T) {
	r := resolver.New(memory.SeedFleet())

	out, err := r.Resolve(context.Background(), resolver.Request{
		Kind:   domain.KindTrip,
		Intent: &domain.Intent{TargetID: id(4242), TargetLabel: "harbor loop", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.True(t, out.Resolution.Resolved())
	assert.Equal(t, memory.SeedHarborLoop, out.Resolution.ID)
	assert.Equal(t, domain.TierClassifierLabel, out.Resolution.Tier)
}

func TestResolve_ClassifierID(t *testing.T) {
	r := resolver.New(memory.SeedFleet())

	out, err := r.Resolve(context.Background(), resolver.Request{
		Kind:   domain.KindTrip,
		Intent: &domain.Intent{TargetID: id(memory.SeedNightOwl), TargetLabel: "Harbor Loop"},
	})
	require.NoError(t, err)
	assert.Equal(t, memory.SeedNightOwl, out.Resolution.ID)
	assert.Equal(t, domain.TierClassifierID, out.Resolution.Tier)
}

func TestResolve_Time(t *testing.T) {
	r := resolver.New(memory.SeedFleet())
	ctx := context.Background()

	t.Run("Single Match", func(t *testing.T) {
		out, err := r.Resolve(ctx, resolver.Request{Kind: domain.KindTrip, Intent: &domain.Intent{TargetTime: "5:30pm"}})
		require.NoError(t, err)
		assert.Equal(t, memory.SeedAirportPM, out.Resolution.ID)
		assert.Equal(t, domain.TierClassifierTime, out.Resolution.Tier)
	})

	t.Run("Zero Matches Fall Through To Label", func(t *testing.T) {
		out, err := r.Resolve(ctx, resolver.Request{
			Kind:   domain.KindTrip,
			Intent: &domain.Intent{TargetTime: "06:10", TargetLabel: "City Shuttle"},
		})
		require.NoError(t, err)
		assert.Equal(t, memory.SeedCityShuttle, out.Resolution.ID)
	})

	t.Run("Zero Matches Without Label", func(t *testing.T) {
		out, err := r.Resolve(ctx, resolver.Request{
			Kind:   domain.KindTrip,
			Intent: &domain.Intent{TargetTime: "06:10", Confidence: 0.9},
		})
		require.NoError(t, err)
		require.NotNil(t, out.Failure)
		assert.Equal(t, domain.CodeNotFound, out.Failure.Code)
		assert.Contains(t, out.Failure.Message, "06:10")
	})
}

func TestResolve_AmbiguousLabel(t *testing.T) {
	r := resolver.New(memory.SeedFleet())

	out, err := r.Resolve(context.Background(), resolver.Request{
		Kind:   domain.KindTrip,
		Action: domain.ActionCancelTrip,
		Intent: &domain.Intent{TargetLabel: "Airport Express", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.CodeAmbiguous, out.Failure.Code)
	assert.Equal(t, domain.ResolutionAmbiguous, out.Resolution.Status)
	assert.False(t, out.Resolution.Resolved(), "never a partial reference")

	require.NotNil(t, out.Options)
	require.Len(t, out.Options.Items, 2)
	assert.Equal(t, memory.SeedAirportAM, out.Options.Items[0].ID)
	assert.Equal(t, memory.SeedAirportPM, out.Options.Items[1].ID)
	assert.Equal(t, domain.ActionCancelTrip, out.Options.Action)
	assert.Contains(t, out.Failure.Message, "08:00")
	assert.Contains(t, out.Failure.Message, "17:30")
}

func TestResolve_LabelMissThreshold(t *testing.T) {
	r := resolver.New(memory.SeedFleet())
	ctx := context.Background()

	low, err := r.Resolve(ctx, resolver.Request{Kind: domain.KindTrip, Intent: &domain.Intent{TargetLabel: "Zephyr", Confidence: 0.3}})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeNeedsClarification, low.Failure.Code)
	assert.Equal(t, domain.ResolutionNeedsClarification, low.Resolution.Status)

	high, err := r.Resolve(ctx, resolver.Request{Kind: domain.KindTrip, Intent: &domain.Intent{TargetLabel: "Zephyr", Confidence: 0.6}})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeNotFound, high.Failure.Code)
}

func TestResolve_FuzzyLabel(t *testing.T) {
	r := resolver.New(memory.SeedFleet())

	out, err := r.Resolve(context.Background(), resolver.Request{Kind: domain.KindTrip, Intent: &domain.Intent{TargetLabel: "harbr lp"}})
	require.NoError(t, err)
	require.True(t, out.Resolution.Resolved())
	assert.Equal(t, memory.SeedHarborLoop, out.Resolution.ID)
}

func TestResolve_PatternExtraction(t *testing.T) {
	ctx := context.Background()
	req := resolver.Request{Kind: domain.KindTrip, Text: "Please cancel the Harbor Loop trip", Intent: &domain.Intent{Action: domain.ActionCancelTrip}}

	disabled := resolver.New(memory.SeedFleet())
	out, err := disabled.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, out.Resolution, "no reference without the text tier")

	enabled := resolver.New(memory.SeedFleet(), resolver.WithPatternExtraction(true))
	out, err = enabled.Resolve(ctx, req)
	require.NoError(t, err)
	require.True(t, out.Resolution.Resolved())
	assert.Equal(t, memory.SeedHarborLoop, out.Resolution.ID)
	assert.Equal(t, domain.TierTextPattern, out.Resolution.Tier)

	out, err = enabled.Resolve(ctx, resolver.Request{Kind: domain.KindTrip, Text: "cancel the 8am airport express"})
	require.NoError(t, err)
	assert.Equal(t, memory.SeedAirportAM, out.Resolution.ID)
}

type brokenDirectory struct{ *memory.Fleet }

func (brokenDirectory) Get(context.Context, domain.EntityKind, int64) (*domain.Entity, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_DirectoryErrorPropagates(t *testing.T) {
	r := resolver.New(brokenDirectory{memory.SeedFleet()})

	_, err := r.Resolve(context.Background(), resolver.Request{Kind: domain.KindTrip, CallerID: id(1)})
	assert.ErrorContains(t, err, "connection refused")
}

func TestResolveNamed(t *testing.T) {
	r := resolver.New(memory.SeedFleet())
	ctx := context.Background()

	e, _, err := r.ResolveNamed(ctx, domain.KindDriver, "sam okafor")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, memory.SeedDriverOkafor, e.ID)

	e, _, err = r.ResolveNamed(ctx, domain.KindVehicle, "#202")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, memory.SeedVehicleBus7, e.ID)

	e, candidates, err := r.ResolveNamed(ctx, domain.KindVehicle, "bus")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Len(t, candidates, 2)
}

func TestNormalizeTime(t *testing.T) {
	tests := map[string]string{
		"8am":    "08:00",
		"8 AM":   "08:00",
		"08:00":  "08:00",
		"8.30":   "08:30",
		"5:30pm": "17:30",
		"12am":   "00:00",
		"12pm":   "12:00",
		"17h05":  "17:05",
		"noon":   "12:00",
		"9 p.m.": "21:00",
		"23:59":  "23:59",
	}
	for in, want := range tests {
		got, ok := resolver.NormalizeTime(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"8", "25:00", "13pm", "7:75", "route 5", ""} {
		_, ok := resolver.NormalizeTime(bad)
		assert.False(t, ok, bad)
	}
}

func TestExtractLabel(t *testing.T) {
	assert.Equal(t, "Harbor Loop", resolver.ExtractLabel("Please cancel the Harbor Loop trip."))
	assert.Equal(t, "Airport Express", resolver.ExtractLabel("cancel the 8am Airport Express"))
	assert.Equal(t, "", resolver.ExtractLabel("cancel the trip"))
}
