package ports

import (
	"context"

	"github.com/aretw0/dispatch/pkg/domain"
)

// Directory is the read-only view of the fleet the engine resolves against.
type Directory interface {
	// Get returns one entity. Returns domain.ErrEntityNotFound if absent.
	Get(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Entity, error)

	// FindByTime returns trips departing at the HH:MM time.
	FindByTime(ctx context.Context, hhmm string) ([]domain.Entity, error)

	// FindByLabel returns entities whose label equals label, ignoring case.
	FindByLabel(ctx context.Context, kind domain.EntityKind, label string) ([]domain.Entity, error)

	// Search returns fuzzy label matches, best first.
	Search(ctx context.Context, kind domain.EntityKind, query string, limit int) ([]domain.Entity, error)

	// Snapshot returns the entity with its dependents and assigned sub-resources.
	Snapshot(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Snapshot, error)

	// Available lists unassigned sub-resources (vehicles, drivers).
	Available(ctx context.Context, kind domain.EntityKind) ([]domain.Entity, error)
}

// IntentClassifier turns free text into a structured intent record.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, hints map[string]any) (*domain.Intent, error)
}
