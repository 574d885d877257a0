package confirm_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/dispatch/internal/confirm"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*confirm.Gate, *session.Manager, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	mgr := session.NewManager(memory.NewStore(), session.WithClock(c.Now))
	return confirm.New(mgr), mgr, c
}

func riskyTurn() *domain.Turn {
	turn := domain.NewTurn(domain.TurnRequest{Text: "cancel harbor loop", SessionID: "s-1", UserID: "ops-1"})
	turn.Intent = &domain.Intent{Action: domain.ActionCancelTrip, Confidence: 0.9}
	turn.Resolution = &domain.Resolution{Kind: domain.KindTrip, ID: 101, Label: "Harbor Loop", Status: domain.ResolutionResolved}
	turn.Risk = &domain.RiskAssessment{
		NeedsConfirmation: true,
		Warnings:          []string{"8 confirmed bookings (20% of seat capacity) will be affected."},
	}
	return turn
}

func resumeTurn(id string, confirmed bool) *domain.Turn {
	return domain.NewTurn(domain.TurnRequest{Resume: &domain.Resume{SessionID: id, Confirmed: confirmed}})
}

func TestGate_Propose(t *testing.T) {
	gate, mgr, _ := setup(t)
	ctx := context.Background()
	turn := riskyTurn()

	require.NoError(t, gate.Propose(ctx, turn))
	assert.Equal(t, domain.StatusConfirmationRequired, turn.Status)
	assert.Equal(t, "s-1", turn.SessionID)
	assert.Contains(t, turn.Message, `cancel trip "Harbor Loop"`)
	assert.Contains(t, turn.Message, "8 confirmed bookings")

	s, err := mgr.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPending, s.Status)
	assert.Equal(t, domain.SessionConfirmation, s.Kind)
	assert.Equal(t, "ops-1", s.UserID)

	var p domain.PendingAction
	require.NoError(t, s.Decode(&p))
	assert.Equal(t, domain.ActionCancelTrip, p.Action)
	assert.Equal(t, int64(101), p.TargetID)
	assert.Len(t, p.Warnings, 1)
}

func TestGate_ProposeTwiceRefreshes(t *testing.T) {
	gate, mgr, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, gate.Propose(ctx, riskyTurn()))
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	s, err := mgr.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Revision)
}

func TestGate_ProposeConflicting(t *testing.T) {
	gate, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	other := riskyTurn()
	other.Resolution.ID = 104
	require.NoError(t, gate.Propose(ctx, other))
	require.NotNil(t, other.Failure)
	assert.Equal(t, domain.CodeFlowInProgress, other.Failure.Code)
	assert.Nil(t, other.Pending)
}

func TestGate_ResumeConfirm(t *testing.T) {
	gate, mgr, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	turn := resumeTurn("s-1", true)
	require.NoError(t, gate.Resume(ctx, turn))
	assert.False(t, turn.Halted(), "a confirmed turn continues to the executor")
	assert.Equal(t, domain.ActionCancelTrip, turn.Action())
	require.True(t, turn.Resolution.Resolved())
	assert.Equal(t, int64(101), turn.Resolution.ID)

	s, err := mgr.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionDone, s.Status)

	again := resumeTurn("s-1", true)
	require.NoError(t, gate.Resume(ctx, again))
	assert.Equal(t, domain.StatusAlreadyResolved, again.Status)
	assert.Contains(t, again.Message, "already confirmed")
}

func TestGate_ResumeDecline(t *testing.T) {
	gate, mgr, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	turn := resumeTurn("s-1", false)
	require.NoError(t, gate.Resume(ctx, turn))
	assert.Equal(t, domain.StatusCancelled, turn.Status)

	s, err := mgr.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, s.Status)
	assert.Equal(t, domain.ReasonDeclined, s.Reason)

	late := resumeTurn("s-1", true)
	require.NoError(t, gate.Resume(ctx, late))
	assert.Equal(t, domain.StatusAlreadyResolved, late.Status)
	assert.Contains(t, late.Message, "declined")
}

func TestGate_ResumeExpired(t *testing.T) {
	gate, mgr, clk := setup(t)
	ctx := context.Background()
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	clk.Advance(session.DefaultTTL + time.Second)
	turn := resumeTurn("s-1", true)
	require.NoError(t, gate.Resume(ctx, turn))
	assert.Equal(t, domain.StatusExpired, turn.Status)
	assert.Equal(t, domain.CodeExpired, turn.Failure.Code)

	s, err := mgr.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, s.Status)
	assert.Equal(t, domain.ReasonExpired, s.Reason)

	again := resumeTurn("s-1", true)
	require.NoError(t, gate.Resume(ctx, again))
	assert.Equal(t, domain.StatusExpired, again.Status)
}

func TestGate_ResumeUnknownSession(t *testing.T) {
	gate, _, _ := setup(t)

	turn := resumeTurn("nope", true)
	require.NoError(t, gate.Resume(context.Background(), turn))
	assert.Equal(t, domain.StatusNotFound, turn.Status)
}

func TestGate_ConcurrentConfirmsClaimOnce(t *testing.T) {
	gate, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, gate.Propose(ctx, riskyTurn()))

	var wg sync.WaitGroup
	var through atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn := resumeTurn("s-1", true)
			if err := gate.Resume(ctx, turn); err == nil && !turn.Halted() {
				through.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), through.Load())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `remove the vehicle from trip "City Shuttle"`, confirm.Describe(&domain.PendingAction{
		Action: domain.ActionRemoveVehicle, TargetKind: domain.KindTrip, TargetLabel: "City Shuttle",
	}))
	assert.Equal(t, "cancel trip 7", confirm.Describe(&domain.PendingAction{
		Action: domain.ActionCancelTrip, TargetKind: domain.KindTrip, TargetID: 7,
	}))
}
