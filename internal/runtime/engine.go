package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/graph"
)

// DefaultMaxSteps is the iteration ceiling applied when none is configured.
const DefaultMaxSteps = 20

// Default terminal node identifiers.
const (
	DefaultReporter graph.NodeID = "report"
	DefaultFallback graph.NodeID = "fallback"
)

// SafeMessage is written when even the fallback node cannot produce a response.
const SafeMessage = "Something went wrong while processing your request. Please try again."

// Engine walks a workflow graph for one turn at a time.
// It holds no per-turn state and is safe for concurrent use.
type Engine struct {
	graph    *graph.Graph
	reporter graph.NodeID
	fallback graph.NodeID
	maxSteps int
	strict   bool
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithMaxSteps overrides the iteration ceiling.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithStrictEdges makes the engine fail closed when more than one
// conditional guard of a node holds at once.
func WithStrictEdges(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithTerminals overrides the reporter and fallback node identifiers.
func WithTerminals(reporter, fallback graph.NodeID) Option {
	return func(e *Engine) {
		e.reporter = reporter
		e.fallback = fallback
	}
}

// NewEngine creates an engine for g. The reporter and fallback nodes must be
// registered and terminal.
func NewEngine(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("runtime: graph is required")
	}
	e := &Engine{
		graph:    g,
		reporter: DefaultReporter,
		fallback: DefaultFallback,
		maxSteps: DefaultMaxSteps,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, id := range []graph.NodeID{e.reporter, e.fallback} {
		node, ok := g.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: terminal node '%s' is not registered", graph.ErrInvalidGraph, id)
		}
		if !node.Terminal {
			return nil, fmt.Errorf("%w: node '%s' must be terminal", graph.ErrInvalidGraph, id)
		}
	}
	return e, nil
}

// Graph returns the graph the engine walks.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Run walks the graph from the entry node until a terminal node ran.
// It never returns an error: engine failures are recorded on turn.Err and
// rendered by the fallback node.
func (e *Engine) Run(ctx context.Context, turn *domain.Turn) *domain.Turn {
	start := time.Now()
	defer e.emitTurnComplete(ctx, turn, start)

	current := e.graph.Entry()
	for step := 0; ; step++ {
		if step >= e.maxSteps {
			e.logger.Warn("iteration ceiling reached", "session_id", turn.SessionID, "node", current, "max_steps", e.maxSteps)
			turn.Err = &domain.EngineError{
				Code:   domain.CodeIterationLimit,
				NodeID: string(current),
				Cause:  fmt.Errorf("exceeded %d steps", e.maxSteps),
			}
			return e.runFallback(ctx, turn)
		}

		if err := ctx.Err(); err != nil {
			turn.Err = &domain.EngineError{Code: domain.CodeCanceled, NodeID: string(current), Cause: err}
			return e.runFallback(ctx, turn)
		}

		node, _ := e.graph.Node(current)
		if err := e.invoke(ctx, node, turn); err != nil {
			turn.Err = err
			if current == e.fallback {
				return e.writeSafeResponse(turn)
			}
			return e.runFallback(ctx, turn)
		}

		if node.Terminal {
			return turn
		}

		if e.strict {
			if hits := e.graph.Overlaps(current, turn); len(hits) > 1 {
				turn.Err = &domain.EngineError{
					Code:   domain.CodeEdgeConflict,
					NodeID: string(current),
					Cause:  fmt.Errorf("guards %v hold at once", hits),
				}
				return e.runFallback(ctx, turn)
			}
		}

		next, ok := e.graph.Next(current, turn)
		if !ok {
			e.logger.Debug("no transition, synthesizing report", "session_id", turn.SessionID, "node", current)
			return e.runReporter(ctx, turn)
		}
		current = next
	}
}

func (e *Engine) runReporter(ctx context.Context, turn *domain.Turn) *domain.Turn {
	node, _ := e.graph.Node(e.reporter)
	if err := e.invoke(ctx, node, turn); err != nil {
		turn.Err = err
		return e.runFallback(ctx, turn)
	}
	return turn
}

// runFallback invokes the fallback node exactly once.
func (e *Engine) runFallback(ctx context.Context, turn *domain.Turn) *domain.Turn {
	e.logger.Error("turn failed", "session_id", turn.SessionID, "node", turn.Err.NodeID, "code", turn.Err.Code, "err", turn.Err.Cause)

	node, _ := e.graph.Node(e.fallback)
	// A canceled context must not prevent the fallback from rendering.
	if err := e.invoke(context.WithoutCancel(ctx), node, turn); err != nil {
		e.logger.Error("fallback failed", "session_id", turn.SessionID, "err", err)
		return e.writeSafeResponse(turn)
	}
	return turn
}

func (e *Engine) writeSafeResponse(turn *domain.Turn) *domain.Turn {
	code := string(domain.CodeNodeError)
	if turn.Err != nil {
		code = string(turn.Err.Code)
	}
	turn.Status = domain.StatusError
	turn.Message = SafeMessage
	turn.Response = &domain.TurnResponse{
		Status:    domain.StatusError,
		Message:   SafeMessage,
		SessionID: turn.SessionID,
		ErrorCode: code,
	}
	return turn
}

// invoke runs one node, recovering panics and checking the field contract.
func (e *Engine) invoke(ctx context.Context, node *graph.Node, turn *domain.Turn) (engineErr *domain.EngineError) {
	id := string(node.ID)
	turn.Visited = append(turn.Visited, id)
	e.emitNodeEnter(ctx, turn, id)
	e.logger.Debug("entering node", "session_id", turn.SessionID, "node", id)

	started := time.Now()
	before := turn.Present()

	defer func() {
		if r := recover(); r != nil {
			engineErr = &domain.EngineError{Code: domain.CodeNodePanic, NodeID: id, Cause: fmt.Errorf("panic: %v", r)}
		}
		e.emitNodeLeave(ctx, turn, id, time.Since(started), engineErr != nil)
	}()

	if err := node.Run(ctx, turn); err != nil {
		var ee *domain.EngineError
		if errors.As(err, &ee) {
			return ee
		}
		return &domain.EngineError{Code: domain.CodeNodeError, NodeID: id, Cause: err}
	}

	if erased := before.Without(turn.Present()).Without(node.Writes); !erased.Empty() {
		return &domain.EngineError{
			Code:   domain.CodeFieldErased,
			NodeID: id,
			Cause:  fmt.Errorf("node cleared fields it does not own: %s", erased),
		}
	}
	return nil
}

func (e *Engine) emitNodeEnter(ctx context.Context, turn *domain.Turn, id string) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeEnter, SessionID: turn.SessionID},
		NodeID:    id,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, turn *domain.Turn, id string, d time.Duration, failed bool) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, SessionID: turn.SessionID},
		NodeID:    id,
		Duration:  d,
		Failed:    failed,
	})
}

func (e *Engine) emitTurnComplete(ctx context.Context, turn *domain.Turn, start time.Time) {
	if e.hooks.OnTurnComplete == nil {
		return
	}
	success := false
	status := turn.Status
	if turn.Response != nil {
		success = turn.Response.Success
		status = turn.Response.Status
	}
	e.hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTurnComplete, SessionID: turn.SessionID},
		Action:    turn.Action(),
		Status:    status,
		Success:   success,
		Steps:     len(turn.Visited),
		Duration:  time.Since(start),
		Resumed:   turn.Request.Resume != nil,
	})
}
