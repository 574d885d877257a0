package ports

import (
	"context"

	"github.com/aretw0/dispatch/pkg/domain"
)

// ActionHandler performs one named business mutation or read.
// An ok=false result is an expected outcome; a returned error is an engine failure.
type ActionHandler interface {
	Handle(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error)

// Handle calls f.
func (f ActionHandlerFunc) Handle(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	return f(ctx, req)
}

// EventPublisher fans executed actions out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ActionEvent) error
}
