package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_MasksResults(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{`(?i)phone`, `^driver$`})
	require.NoError(t, err)
	store := mw(underlying)

	opened, err := store.Open(ctx, pending("pii", `{"action":"assign_driver","phone":"555-0100"}`))
	require.NoError(t, err)

	next := opened.Clone()
	next.Status = domain.SessionDone
	next.Result = []byte(`{"ok":true,"data":{"driver":"Rivera","Phone":"555-0100","trips":[{"driver":"Chen"}]}}`)
	_, err = store.CompareAndSwap(ctx, next, opened.Revision)
	require.NoError(t, err)

	raw, err := underlying.Get(ctx, "pii")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"data":{"driver":"***","Phone":"***","trips":[{"driver":"***"}]}}`, string(raw.Result))
	assert.Contains(t, string(raw.Payload), "555-0100", "payloads are resumed from and stay intact")
	assert.Contains(t, string(next.Result), "Rivera", "the caller's copy is not mutated")
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{`^secret$`})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	store := middleware.Chain(underlying, pii, enc)

	s := pending("chain", `{"action":"list_trips"}`)
	s.Result = []byte(`{"secret":"x","ok":true}`)
	_, err = store.Open(ctx, s)
	require.NoError(t, err)

	raw, err := underlying.Get(ctx, "chain")
	require.NoError(t, err)
	assert.Contains(t, string(raw.Payload), "__encrypted__")

	loaded, err := store.Get(ctx, "chain")
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"list_trips"}`, string(loaded.Payload))
}
