// Package redis provides the Redis session store and distributed lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the adapter writes.
const DefaultPrefix = "dispatch:"

const maxTxAttempts = 16

// Store implements ports.SessionStore using Redis. Writes run in WATCH/MULTI
// transactions so a compare-and-set never overwrites a concurrent writer.
type Store struct {
	client    *backend.Client
	prefix    string
	retention time.Duration
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetention sets how long a row outlives its expiry before Redis drops the key.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		retention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.get(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (s *Store) get(ctx context.Context, c getter, id string) (*domain.Session, error) {
	val, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Open upserts a PENDING session following domain.PrepareOpen.
func (s *Store) Open(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	return s.update(ctx, sess.ID, func(existing *domain.Session) (*domain.Session, error) {
		return domain.PrepareOpen(existing, sess)
	})
}

// CompareAndSwap replaces the session if its stored revision equals expect.
func (s *Store) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	return s.update(ctx, next.ID, func(existing *domain.Session) (*domain.Session, error) {
		if existing == nil {
			return nil, domain.ErrSessionNotFound
		}
		return domain.PrepareSwap(existing, next, expect)
	})
}

// update runs fn against the current row inside a WATCH transaction and
// retries when another client wrote the key in between.
func (s *Store) update(ctx context.Context, id string, fn func(existing *domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	key := s.key(id)
	var out *domain.Session

	txf := func(tx *backend.Tx) error {
		existing, err := s.get(ctx, tx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			existing = nil
		} else if err != nil {
			return err
		}
		row, err := fn(existing)
		if err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.keyTTL(row))
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(row.UpdatedAt.UnixMilli()), Member: row.ID})
			return nil
		})
		if err != nil {
			return err
		}
		out = row
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: session %s kept changing", domain.ErrStatusConflict, id)
}

// keyTTL keeps the key around for the retention period after the row stops mattering.
func (s *Store) keyTTL(row *domain.Session) time.Duration {
	if s.retention <= 0 {
		return 0
	}
	ttl := s.retention
	if row.Open() && row.ExpiresAt.After(row.UpdatedAt) {
		ttl += row.ExpiresAt.Sub(row.UpdatedAt)
	}
	return ttl
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns stored sessions, most recently updated first. Index entries
// whose key already expired are pruned on the way.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	var sessions []*domain.Session
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess domain.Session
		if err := json.Unmarshal([]byte(str), &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session %s: %w", ids[i], err)
		}
		sessions = append(sessions, &sess)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune session index: %w", err)
		}
	}
	return sessions, nil
}

// Sweep expires stale PENDING rows and removes terminal rows older than retention.
func (s *Store) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		switch sess.Sweep(now, retention) {
		case domain.SweepExpire:
			_, err := s.update(ctx, sess.ID, func(existing *domain.Session) (*domain.Session, error) {
				if existing == nil || existing.Revision != sess.Revision {
					return nil, domain.ErrStatusConflict
				}
				return existing.ExpireAt(now), nil
			})
			if errors.Is(err, domain.ErrStatusConflict) {
				continue
			}
			if err != nil {
				return n, err
			}
			n++
		case domain.SweepRemove:
			if err := s.Delete(ctx, sess.ID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
