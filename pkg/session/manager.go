package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/google/uuid"
)

// Defaults for session lifetimes.
const (
	DefaultTTL       = 15 * time.Minute
	DefaultRetention = 24 * time.Hour
	DefaultLockTTL   = 30 * time.Second
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
//
// Open, Get and the transition helpers do not lock; callers that read then
// write a session wrap the sequence in WithLock.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker    ports.DistributedLocker // Optional distributed locker
	lockTTL   time.Duration
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL bounds how long a distributed lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithTTL sets how long a PENDING session stays resumable.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithRetention sets how long terminal sessions are kept before Sweep removes them.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		locks:     make(map[string]*lockEntry),
		lockTTL:   DefaultLockTTL,
		ttl:       DefaultTTL,
		retention: DefaultRetention,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// NewID returns a fresh opaque session ID.
func (m *Manager) NewID() string {
	return m.newID()
}

// Now returns the manager clock.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Open upserts a PENDING session for payload. An empty id gets a generated one.
// The same proposal again refreshes the row. A different one while the row is
// live fails with domain.ErrFlowInProgress.
func (m *Manager) Open(ctx context.Context, id, userID string, kind domain.SessionKind, fingerprint string, payload any) (*domain.Session, error) {
	if id == "" {
		id = m.newID()
	}
	now := m.now()
	s := &domain.Session{
		ID:          id,
		UserID:      userID,
		Kind:        kind,
		Fingerprint: fingerprint,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := s.Encode(payload); err != nil {
		return nil, err
	}
	opened, err := m.store.Open(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session: %w", kind, err)
	}
	m.logger.Debug("session opened", "session_id", id, "kind", kind, "revision", opened.Revision)
	return opened, nil
}

// Get loads a session.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.store.Get(ctx, id)
}

// Active returns the session if it is PENDING and not expired.
// Expired rows are cancelled on the way; (nil, nil) means there is no live flow.
func (m *Manager) Active(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, nil
	}
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.Open() {
		return nil, nil
	}
	if s.Expired(m.now()) {
		if _, err := m.Cancel(ctx, s, domain.ReasonExpired); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			return nil, err
		}
		return nil, nil
	}
	return s, nil
}

// Advance stores a new payload on a PENDING session and extends its expiry.
func (m *Manager) Advance(ctx context.Context, s *domain.Session, payload any) (*domain.Session, error) {
	next := s.Clone()
	if err := next.Encode(payload); err != nil {
		return nil, err
	}
	now := m.now()
	next.UpdatedAt = now
	next.ExpiresAt = now.Add(m.ttl)
	return m.store.CompareAndSwap(ctx, next, s.Revision)
}

// Claim moves a PENDING session to DONE. Losing a race yields domain.ErrStatusConflict.
func (m *Manager) Claim(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	return m.transition(ctx, s, domain.SessionDone, "", nil)
}

// Cancel moves a PENDING session to CANCELLED with a reason.
func (m *Manager) Cancel(ctx context.Context, s *domain.Session, reason string) (*domain.Session, error) {
	return m.transition(ctx, s, domain.SessionCancelled, reason, nil)
}

// Complete attaches the execution result to a claimed session.
func (m *Manager) Complete(ctx context.Context, s *domain.Session, result any) (*domain.Session, error) {
	if s.Status != domain.SessionDone {
		return nil, fmt.Errorf("%w: session %s is %s, not DONE", domain.ErrStatusConflict, s.ID, s.Status)
	}
	return m.transition(ctx, s, domain.SessionDone, domain.ReasonConsumed, result)
}

func (m *Manager) transition(ctx context.Context, s *domain.Session, to domain.SessionStatus, reason string, result any) (*domain.Session, error) {
	attaching := to == domain.SessionDone && s.Status == domain.SessionDone && result != nil
	if !s.Open() && !attaching {
		return nil, fmt.Errorf("%w: session %s is already %s", domain.ErrStatusConflict, s.ID, s.Status)
	}
	next := s.Clone()
	next.Status = to
	next.Reason = reason
	next.UpdatedAt = m.now()
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session result: %w", err)
		}
		next.Result = data
	}
	out, err := m.store.CompareAndSwap(ctx, next, s.Revision)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("session transition", "session_id", s.ID, "from", s.Status, "to", to, "reason", reason)
	return out, nil
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]*domain.Session, error) {
	return m.store.List(ctx)
}

// Sweep expires stale PENDING sessions and removes old terminal ones.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.Sweep(ctx, m.now(), m.retention)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("sessions swept", "count", n)
	}
	return n, nil
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}
