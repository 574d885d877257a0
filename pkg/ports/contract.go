package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSession(id, fingerprint string, now time.Time) *domain.Session {
	return &domain.Session{
		ID:          id,
		UserID:      "ops-1",
		Kind:        domain.SessionConfirmation,
		Payload:     []byte(`{"action":"cancel_trip","target_id":7}`),
		Fingerprint: fingerprint,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(15 * time.Minute),
	}
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Open and Get", func(t *testing.T) {
		id := prefix + "-open"
		opened, err := store.Open(ctx, contractSession(id, "cancel_trip|trip:7", now))
		require.NoError(t, err, "Open should not return error")
		assert.Equal(t, int64(1), opened.Revision)
		assert.Equal(t, domain.SessionPending, opened.Status)

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, id, loaded.ID)
		assert.Equal(t, "ops-1", loaded.UserID)
		assert.Equal(t, domain.SessionConfirmation, loaded.Kind)
		assert.Equal(t, int64(1), loaded.Revision)
		assert.JSONEq(t, `{"action":"cancel_trip","target_id":7}`, string(loaded.Payload))
		assert.True(t, loaded.ExpiresAt.Equal(now.Add(15*time.Minute)))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Reopen Same Proposal", func(t *testing.T) {
		id := prefix + "-refresh"
		_, err := store.Open(ctx, contractSession(id, "a", now))
		require.NoError(t, err)

		again, err := store.Open(ctx, contractSession(id, "a", now.Add(time.Second)))
		require.NoError(t, err, "identical proposal must refresh")
		assert.Equal(t, int64(2), again.Revision)

		list, err := store.List(ctx)
		require.NoError(t, err)
		count := 0
		for _, s := range list {
			if s.ID == id {
				count++
			}
		}
		assert.Equal(t, 1, count, "refresh must not duplicate")
	})

	t.Run("Reopen Different Proposal", func(t *testing.T) {
		id := prefix + "-conflict"
		_, err := store.Open(ctx, contractSession(id, "a", now))
		require.NoError(t, err)

		_, err = store.Open(ctx, contractSession(id, "b", now.Add(time.Second)))
		assert.ErrorIs(t, err, domain.ErrFlowInProgress)
	})

	t.Run("Compare And Swap", func(t *testing.T) {
		id := prefix + "-cas"
		opened, err := store.Open(ctx, contractSession(id, "a", now))
		require.NoError(t, err)

		next := opened.Clone()
		next.Status = domain.SessionDone
		next.Result = []byte(`{"ok":true}`)
		next.UpdatedAt = now.Add(time.Second)
		done, err := store.CompareAndSwap(ctx, next, opened.Revision)
		require.NoError(t, err)
		assert.Equal(t, opened.Revision+1, done.Revision)

		// A stale writer loses.
		_, err = store.CompareAndSwap(ctx, next, opened.Revision)
		assert.ErrorIs(t, err, domain.ErrStatusConflict)

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionDone, loaded.Status)
		assert.JSONEq(t, `{"ok":true}`, string(loaded.Result))
	})

	t.Run("Compare And Swap Missing", func(t *testing.T) {
		_, err := store.CompareAndSwap(ctx, contractSession(prefix+"-nope", "a", now), 1)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Concurrent Claims", func(t *testing.T) {
		id := prefix + "-race"
		opened, err := store.Open(ctx, contractSession(id, "a", now))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := opened.Clone()
				next.Status = domain.SessionDone
				if _, err := store.CompareAndSwap(ctx, next, opened.Revision); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins, "exactly one claim may win")
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		_, err := store.Open(ctx, contractSession(id, "a", now))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")
		_, err = store.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Delete should return ErrSessionNotFound")
		assert.NoError(t, store.Delete(ctx, id), "Delete is idempotent")
	})

	t.Run("Sweep", func(t *testing.T) {
		stale := prefix + "-stale"
		old := prefix + "-old"
		_, err := store.Open(ctx, contractSession(stale, "a", now))
		require.NoError(t, err)
		opened, err := store.Open(ctx, contractSession(old, "a", now))
		require.NoError(t, err)
		closed := opened.Clone()
		closed.Status = domain.SessionCancelled
		_, err = store.CompareAndSwap(ctx, closed, opened.Revision)
		require.NoError(t, err)

		n, err := store.Sweep(ctx, now.Add(48*time.Hour), 24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 2)

		expired, err := store.Get(ctx, stale)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCancelled, expired.Status)
		assert.Equal(t, domain.ReasonExpired, expired.Reason)

		_, err = store.Get(ctx, old)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
