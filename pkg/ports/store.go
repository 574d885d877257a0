package ports

import (
	"context"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
)

// SessionStore persists the cross-turn flow records.
// Every mutation is an upsert or a compare-and-set keyed by session ID.
type SessionStore interface {
	// Get retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Open upserts a PENDING session following domain.PrepareOpen and returns the stored row.
	// Returns domain.ErrFlowInProgress when a different live flow holds the ID.
	Open(ctx context.Context, s *domain.Session) (*domain.Session, error)

	// CompareAndSwap replaces the session if its stored revision equals expect.
	// Returns domain.ErrStatusConflict on mismatch and domain.ErrSessionNotFound if absent.
	CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all stored sessions, most recently updated first.
	List(ctx context.Context) ([]*domain.Session, error)

	// Sweep expires stale PENDING rows and removes terminal rows older than retention.
	// It returns how many rows were touched.
	Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}
