// Package executor runs the business handler of a settled action exactly once
// per call and reports the uniform result.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// Executor is a registry of named action handlers.
type Executor struct {
	mu        sync.RWMutex
	handlers  map[string]ports.ActionHandler
	publisher ports.EventPublisher
	hooks     domain.LifecycleHooks
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithPublisher fans executed actions out to an event publisher.
func WithPublisher(p ports.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

// WithLifecycleHooks registers an OnActionExecuted callback.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an executor with the given handlers.
func New(handlers map[string]ports.ActionHandler, opts ...Option) *Executor {
	e := &Executor{
		handlers: make(map[string]ports.ActionHandler, len(handlers)),
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for name, h := range handlers {
		e.handlers[name] = h
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces a handler.
func (e *Executor) Register(name string, h ports.ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// Actions lists the registered action names, sorted.
func (e *Executor) Actions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute invokes the handler of turn.Action() and records its result.
// ok=false is reported as an execution failure; handler errors are returned.
func (e *Executor) Execute(ctx context.Context, turn *domain.Turn) error {
	action := turn.Action()
	e.mu.RLock()
	h, ok := e.handlers[action]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action)
	}

	req := domain.ActionRequest{
		Action:    action,
		Params:    turn.Params,
		UserID:    turn.Request.UserID,
		SessionID: turn.SessionID,
	}
	if turn.Resolution.Resolved() {
		req.TargetKind = turn.Resolution.Kind
		req.TargetID = turn.Resolution.ID
	}

	start := e.now()
	res, err := h.Handle(ctx, req)
	duration := e.now().Sub(start)
	if err != nil {
		return fmt.Errorf("action %s failed: %w", action, err)
	}

	turn.Result = &res
	if res.OK {
		turn.Status = domain.StatusExecuted
		if turn.Wizard != nil {
			turn.Status = domain.StatusCompleted
		}
		turn.Message = res.Message
	} else {
		turn.Fail(domain.StatusActionFailed, &domain.Failure{
			Kind:    domain.FailureExecution,
			Code:    domain.CodeActionFailed,
			Message: res.Message,
		})
	}

	e.logger.Info("action executed",
		"session_id", turn.SessionID,
		"action", action,
		"target_id", req.TargetID,
		"ok", res.OK,
		"duration", duration,
	)

	event := &domain.ActionEvent{
		Action:    action,
		TargetID:  req.TargetID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		OK:        res.OK,
		Message:   res.Message,
		At:        start,
		Duration:  duration,
	}
	if e.hooks.OnActionExecuted != nil {
		e.hooks.OnActionExecuted(ctx, event)
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, *event); err != nil {
			e.logger.Warn("failed to publish action event", "action", action, "session_id", turn.SessionID, "err", err)
		}
	}
	return nil
}
