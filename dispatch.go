package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/dispatch/internal/confirm"
	"github.com/aretw0/dispatch/internal/executor"
	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/internal/report"
	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/internal/risk"
	"github.com/aretw0/dispatch/internal/router"
	"github.com/aretw0/dispatch/internal/runtime"
	"github.com/aretw0/dispatch/internal/sanitize"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/internal/workflow"
	"github.com/aretw0/dispatch/pkg/adapters/classifier"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/graph"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/aretw0/dispatch/pkg/session"
)

// Engine is the high-level entry point. It implements ports.TurnProcessor
// and ports.SessionAdmin and is safe for concurrent use.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager
	executor *executor.Executor
	logger   *slog.Logger
}

var (
	_ ports.TurnProcessor = (*Engine)(nil)
	_ ports.SessionAdmin  = (*Engine)(nil)
)

type settings struct {
	store      ports.SessionStore
	directory  ports.Directory
	handlers   map[string]ports.ActionHandler
	classifier ports.IntentClassifier
	locker     ports.DistributedLocker
	publisher  ports.EventPublisher
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time

	ttl, retention, lockTTL time.Duration
	threshold               float64
	patternExtraction       bool
	capacity                int
	maxSteps                int
	strictEdges             bool
}

// Option defines a functional option for configuring the Engine.
type Option func(*settings)

// WithSessionStore sets where sessions live. Defaults to an in-memory store.
func WithSessionStore(store ports.SessionStore) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithFleet sets the entity directory and the action handlers.
// Defaults to the in-memory demo fleet.
func WithFleet(dir ports.Directory, handlers map[string]ports.ActionHandler) Option {
	return func(s *settings) {
		s.directory = dir
		s.handlers = handlers
	}
}

// WithClassifier sets the intent classifier. Defaults to the keyword rules.
func WithClassifier(c ports.IntentClassifier) Option {
	return func(s *settings) {
		s.classifier = c
	}
}

// WithLocker serializes turns of one session across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(s *settings) {
		s.locker = l
	}
}

// WithPublisher announces executed actions.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *settings) {
		s.publisher = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = s.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock sets the time source for sessions and action events.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithSessionLifetimes sets the pending TTL, the terminal retention and the lock TTL.
// Zero values keep the defaults.
func WithSessionLifetimes(ttl, retention, lockTTL time.Duration) Option {
	return func(s *settings) {
		s.ttl, s.retention, s.lockTTL = ttl, retention, lockTTL
	}
}

// WithThreshold sets the confidence under which requests are treated as unclear.
func WithThreshold(t float64) Option {
	return func(s *settings) {
		s.threshold = t
	}
}

// WithPatternExtraction enables resolving targets from the raw request text.
func WithPatternExtraction(enabled bool) Option {
	return func(s *settings) {
		s.patternExtraction = enabled
	}
}

// WithSeatCapacity sets the capacity used for booking impact percentages.
func WithSeatCapacity(n int) Option {
	return func(s *settings) {
		s.capacity = n
	}
}

// WithMaxSteps bounds node visits per turn.
func WithMaxSteps(n int) Option {
	return func(s *settings) {
		s.maxSteps = n
	}
}

// WithStrictEdges fails a turn when two guards of a node hold at once.
func WithStrictEdges(strict bool) Option {
	return func(s *settings) {
		s.strictEdges = strict
	}
}

// New assembles the engine.
func New(opts ...Option) (*Engine, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.store == nil {
		s.store = memory.NewStore()
	}
	if s.directory == nil {
		fleet := memory.SeedFleet()
		s.directory, s.handlers = fleet, fleet.Handlers()
	}
	if s.handlers == nil {
		return nil, errors.New("action handlers are required with a custom directory")
	}
	if s.classifier == nil {
		s.classifier = classifier.NewKeyword()
	}

	sessionOpts := []session.Option{
		session.WithTTL(s.ttl),
		session.WithRetention(s.retention),
		session.WithLockTTL(s.lockTTL),
		session.WithLogger(s.logger),
	}
	if s.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(s.locker))
	}
	if s.now != nil {
		sessionOpts = append(sessionOpts, session.WithClock(s.now))
	}
	sessions := session.NewManager(s.store, sessionOpts...)

	resolverOpts := []resolver.Option{
		resolver.WithPatternExtraction(s.patternExtraction),
		resolver.WithLogger(s.logger),
	}
	routerOpts := []router.Option{router.WithLogger(s.logger)}
	if s.threshold > 0 {
		resolverOpts = append(resolverOpts, resolver.WithThreshold(s.threshold))
		routerOpts = append(routerOpts, router.WithThreshold(s.threshold))
	}
	res := resolver.New(s.directory, resolverOpts...)
	wizards := wizard.New(sessions, res, wizard.WithLogger(s.logger))

	var riskOpts []risk.Option
	if s.capacity > 0 {
		riskOpts = append(riskOpts, risk.WithCapacity(s.capacity))
	}

	execOpts := []executor.Option{
		executor.WithLifecycleHooks(s.hooks),
		executor.WithLogger(s.logger),
	}
	if s.publisher != nil {
		execOpts = append(execOpts, executor.WithPublisher(s.publisher))
	}
	if s.now != nil {
		execOpts = append(execOpts, executor.WithClock(s.now))
	}
	exec := executor.New(s.handlers, execOpts...)

	g, err := workflow.Build(workflow.Components{
		Sessions:   sessions,
		Directory:  s.directory,
		Classifier: s.classifier,
		Resolver:   res,
		Risk:       risk.New(riskOpts...),
		Gate:       confirm.New(sessions, confirm.WithLogger(s.logger)),
		Wizards:    wizards,
		Router:     router.New(s.directory, res, wizards, sessions, routerOpts...),
		Executor:   exec,
		Reporter:   report.NewReporter(report.WithLogger(s.logger)),
		Fallback:   report.NewFallback(report.WithLogger(s.logger)),
		Logger:     s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	rt, err := runtime.NewEngine(g,
		runtime.WithLogger(s.logger),
		runtime.WithLifecycleHooks(s.hooks),
		runtime.WithMaxSteps(s.maxSteps),
		runtime.WithStrictEdges(s.strictEdges),
		runtime.WithTerminals(workflow.Report, workflow.Fallback),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{runtime: rt, sessions: sessions, executor: exec, logger: s.logger}, nil
}

// Process runs one turn. A request without a session id gets a fresh one,
// returned in the response so follow-ups can continue the flow.
func (e *Engine) Process(ctx context.Context, req domain.TurnRequest) *domain.TurnResponse {
	text, err := sanitize.Input(req.Text)
	if err != nil {
		return &domain.TurnResponse{
			Status:    domain.StatusError,
			Message:   "The request could not be read: " + err.Error() + ".",
			SessionID: req.SessionID,
			ErrorCode: domain.CodeInvalidInput,
		}
	}
	req.Text = text
	req.Resume = nil
	if req.SessionID == "" {
		req.SessionID = e.sessions.NewID()
	}
	return e.run(ctx, req.SessionID, req)
}

// Confirm resumes the pending confirmation on req.SessionID.
func (e *Engine) Confirm(ctx context.Context, req domain.ConfirmRequest) *domain.TurnResponse {
	if req.SessionID == "" {
		return &domain.TurnResponse{
			Status:    domain.StatusError,
			Message:   "A session id is required to confirm or decline.",
			ErrorCode: domain.CodeInvalidInput,
		}
	}
	return e.run(ctx, req.SessionID, domain.TurnRequest{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Resume:    &domain.Resume{SessionID: req.SessionID, Confirmed: req.Confirmed},
	})
}

// run walks the graph while holding the session lock.
func (e *Engine) run(ctx context.Context, sessionID string, req domain.TurnRequest) *domain.TurnResponse {
	var resp *domain.TurnResponse
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		resp = e.runtime.Run(ctx, domain.NewTurn(req)).Response
		return nil
	})
	if err != nil {
		e.logger.Error("turn not run", "session_id", sessionID, "err", err)
		return &domain.TurnResponse{
			Status:    domain.StatusError,
			Message:   "This session is busy with another request. Please try again.",
			SessionID: sessionID,
			ErrorCode: string(domain.CodeSessionLocked),
		}
	}
	return resp
}

// Session returns the stored session.
func (e *Engine) Session(ctx context.Context, id string) (*domain.Session, error) {
	return e.sessions.Get(ctx, id)
}

// Sessions lists stored sessions, most recently updated first.
func (e *Engine) Sessions(ctx context.Context) ([]*domain.Session, error) {
	return e.sessions.List(ctx)
}

// DeleteSession removes a session.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// Sweep expires stale pending sessions and removes old terminal ones.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.sessions.Sweep(ctx)
}

// Graph returns the workflow graph.
func (e *Engine) Graph() *graph.Graph {
	return e.runtime.Graph()
}

// Mermaid renders the workflow graph as a Mermaid flowchart.
func (e *Engine) Mermaid() string {
	return graph.Mermaid(e.runtime.Graph(), nil)
}

// Actions lists the actions with a registered handler.
func (e *Engine) Actions() []string {
	return e.executor.Actions()
}
