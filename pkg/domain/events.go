package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventNodeLeave    EventType = "node_leave"
	EventTurnComplete EventType = "turn_complete"
	EventActionRun    EventType = "action_run"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Duration time.Duration `json:"duration,omitempty"`
	Failed   bool          `json:"failed,omitempty"`
}

// TurnEvent is emitted once per turn after the response is built.
type TurnEvent struct {
	EventBase
	Action   string        `json:"action,omitempty"`
	Status   TurnStatus    `json:"status"`
	Success  bool          `json:"success"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
	// Resumed marks a confirm or decline call.
	Resumed bool `json:"resumed,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter      func(context.Context, *NodeEvent)
	OnNodeLeave      func(context.Context, *NodeEvent)
	OnTurnComplete   func(context.Context, *TurnEvent)
	OnActionExecuted func(context.Context, *ActionEvent)
}

// Merge combines two hook sets, calling a before b.
func (a LifecycleHooks) Merge(b LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:      chain(a.OnNodeEnter, b.OnNodeEnter),
		OnNodeLeave:      chain(a.OnNodeLeave, b.OnNodeLeave),
		OnTurnComplete:   chain(a.OnTurnComplete, b.OnTurnComplete),
		OnActionExecuted: chain(a.OnActionExecuted, b.OnActionExecuted),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
