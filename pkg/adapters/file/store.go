// Package file stores sessions as JSON files, one per session, so flows
// survive between separate CLI invocations.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/gofrs/flock"
)

// DefaultPath is used when New is given an empty base path.
var DefaultPath = filepath.Join(".dispatch", "sessions")

// lockName is the advisory lock file that serializes writers across processes.
const lockName = ".lock"

// Store implements ports.SessionStore on the local filesystem.
// Every read-modify-write holds an OS file lock on the base directory, so
// several processes may share one directory.
type Store struct {
	BasePath string
	mu       sync.Mutex
}

// New creates a Store rooted at basePath.
func New(basePath string) *Store {
	if basePath == "" {
		basePath = DefaultPath
	}
	return &Store{BasePath: basePath}
}

// lock takes the in-process mutex and then the exclusive directory file lock.
// flock locks are per open file, so the mutex still orders goroutines of one Store.
func (s *Store) lock() (func(), error) {
	return s.acquire(false)
}

// rlock is lock with a shared file lock, for readers.
func (s *Store) rlock() (func(), error) {
	return s.acquire(true)
}

func (s *Store) acquire(shared bool) (func(), error) {
	s.mu.Lock()
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to ensure session directory: %w", err)
	}
	fl := flock.New(filepath.Join(s.BasePath, lockName))
	take := fl.Lock
	if shared {
		take = fl.RLock
	}
	if err := take(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to lock session directory: %w", err)
	}
	return func() {
		_ = fl.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.BasePath, id+".json"), nil
}

func (s *Store) read(id string) (*domain.Session, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// write replaces the session file atomically: temp file, fsync, rename.
func (s *Store) write(sess *domain.Session) error {
	dest, err := s.path(sess.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(s.BasePath, "tmp-"+sess.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to replace session file: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get loads the session.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	if _, err := s.path(id); err != nil {
		return nil, err
	}
	unlock, err := s.rlock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.read(id)
}

// Open upserts a PENDING session.
func (s *Store) Open(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.read(sess.ID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	row, err := domain.PrepareOpen(existing, sess)
	if err != nil {
		return nil, err
	}
	if err := s.write(row); err != nil {
		return nil, err
	}
	return row, nil
}

// CompareAndSwap replaces the session when the stored revision matches.
func (s *Store) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.read(next.ID)
	if err != nil {
		return nil, err
	}
	row, err := domain.PrepareSwap(existing, next, expect)
	if err != nil {
		return nil, err
	}
	if err := s.write(row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes the session file. Missing sessions are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns stored sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	unlock, err := s.rlock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.list()
}

func (s *Store) list() ([]*domain.Session, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*domain.Session{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		sess, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Sweep expires stale PENDING files and removes old terminal ones.
func (s *Store) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	sessions, err := s.list()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		switch sess.Sweep(now, retention) {
		case domain.SweepExpire:
			if err := s.write(sess.ExpireAt(now)); err != nil {
				return n, err
			}
			n++
		case domain.SweepRemove:
			p, _ := s.path(sess.ID)
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return n, fmt.Errorf("failed to remove session file: %w", err)
			}
			n++
		}
	}
	return n, nil
}
