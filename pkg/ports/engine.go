package ports

import (
	"context"

	"github.com/aretw0/dispatch/pkg/domain"
)

// TurnProcessor is the surface transports (HTTP, MCP, CLI) drive.
type TurnProcessor interface {
	// Process runs one free-text or structured turn.
	Process(ctx context.Context, req domain.TurnRequest) *domain.TurnResponse

	// Confirm resumes a pending confirmation.
	Confirm(ctx context.Context, req domain.ConfirmRequest) *domain.TurnResponse
}

// SessionAdmin exposes session administration to transports.
type SessionAdmin interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	Sessions(ctx context.Context) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
}
