package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Session),
	}
}

// Get retrieves a copy of the session so callers can't mutate store state by pointer.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Open upserts a PENDING session.
func (s *Store) Open(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := domain.PrepareOpen(s.data[sess.ID], sess)
	if err != nil {
		return nil, err
	}
	s.data[row.ID] = row
	return row.Clone(), nil
}

// CompareAndSwap replaces the session when the stored revision matches.
func (s *Store) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[next.ID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	row, err := domain.PrepareSwap(existing, next, expect)
	if err != nil {
		return nil, err
	}
	s.data[row.ID] = row
	return row.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*domain.Session, 0, len(s.data))
	for _, sess := range s.data {
		sessions = append(sessions, sess.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Sweep expires stale PENDING rows and drops old terminal ones.
func (s *Store) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.data {
		switch sess.Sweep(now, retention) {
		case domain.SweepExpire:
			s.data[id] = sess.ExpireAt(now)
			n++
		case domain.SweepRemove:
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}
