package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/dispatch/pkg/domain"
)

// LoggingHooks logs node transitions at Debug and turn and action outcomes at Info.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave", "session_id", e.SessionID, "node_id", e.NodeID,
				"duration", e.Duration, "failed", e.Failed)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			logger.InfoContext(ctx, "turn_complete", "session_id", e.SessionID, "action", e.Action,
				"status", e.Status, "success", e.Success, "steps", e.Steps, "duration", e.Duration)
		},
		OnActionExecuted: func(ctx context.Context, e *domain.ActionEvent) {
			level := slog.LevelInfo
			if !e.OK {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "action_executed", "session_id", e.SessionID, "action", e.Action,
				"target_id", e.TargetID, "ok", e.OK, "duration", e.Duration)
		},
	}
}
