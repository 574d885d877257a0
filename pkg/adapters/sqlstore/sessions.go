package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
)

const sessionColumns = `id, user_id, kind, status, revision, fingerprint, payload, result, reason, created_at, updated_at, expires_at`

// SessionStore implements ports.SessionStore on the sessions table. Every write
// is conditioned on the revision read in the same transaction.
type SessionStore struct {
	db *DB
}

// Sessions returns the session store sharing this pool.
func (d *DB) Sessions() *SessionStore {
	return &SessionStore{db: d}
}

func scanSession(row scanner) (*domain.Session, error) {
	var s domain.Session
	var kind, status string
	var payload, result []byte
	var created, updated, expires int64
	if err := row.Scan(&s.ID, &s.UserID, &kind, &status, &s.Revision, &s.Fingerprint,
		&payload, &result, &s.Reason, &created, &updated, &expires); err != nil {
		return nil, err
	}
	s.Payload = payload
	s.Result = result
	s.Kind = domain.SessionKind(kind)
	s.Status = domain.SessionStatus(status)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	s.ExpiresAt = fromMillis(expires)
	return &s, nil
}

func blob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (s *SessionStore) get(ctx context.Context, q querier, id string) (*domain.Session, error) {
	sess, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return sess, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.get(ctx, s.db.db, id)
}

// Open upserts a PENDING session following domain.PrepareOpen.
func (s *SessionStore) Open(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.get(ctx, tx, sess.ID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			existing = nil
		} else if err != nil {
			return err
		}
		row, err := domain.PrepareOpen(existing, sess)
		if err != nil {
			return err
		}
		if existing == nil {
			err = s.insert(ctx, tx, row)
		} else {
			err = s.update(ctx, tx, row, existing.Revision)
		}
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

// CompareAndSwap replaces the session if its stored revision equals expect.
func (s *SessionStore) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.get(ctx, tx, next.ID)
		if err != nil {
			return err
		}
		row, err := domain.PrepareSwap(existing, next, expect)
		if err != nil {
			return err
		}
		if err := s.update(ctx, tx, row, expect); err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

func (s *SessionStore) insert(ctx context.Context, tx *sql.Tx, row *domain.Session) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, string(row.Kind), string(row.Status), row.Revision, row.Fingerprint,
		blob(row.Payload), blob(row.Result), row.Reason,
		millis(row.CreatedAt), millis(row.UpdatedAt), millis(row.ExpiresAt))
	if isDuplicate(err) {
		return fmt.Errorf("%w: session %s was opened concurrently", domain.ErrStatusConflict, row.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) update(ctx context.Context, tx *sql.Tx, row *domain.Session, expect int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET user_id = ?, kind = ?, status = ?, revision = ?, fingerprint = ?,
	payload = ?, result = ?, reason = ?, created_at = ?, updated_at = ?, expires_at = ?
WHERE id = ? AND revision = ?`,
		row.UserID, string(row.Kind), string(row.Status), row.Revision, row.Fingerprint,
		blob(row.Payload), blob(row.Result), row.Reason,
		millis(row.CreatedAt), millis(row.UpdatedAt), millis(row.ExpiresAt),
		row.ID, expect)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s moved past revision %d", domain.ErrStatusConflict, row.ID, expect)
	}
	return nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns all sessions, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Sweep removes terminal rows older than retention and expires stale PENDING
// rows, in one transaction.
func (s *SessionStore) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	var n int64
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE status <> ? AND updated_at < ?`,
			string(domain.SessionPending), now.Add(-retention).UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to remove old sessions: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET status = ?, reason = ?, revision = revision + 1, updated_at = ?
WHERE status = ? AND expires_at > 0 AND expires_at < ?`,
			string(domain.SessionCancelled), domain.ReasonExpired, now.UnixMilli(),
			string(domain.SessionPending), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to expire sessions: %w", err)
		}
		expired, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = removed + expired
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.db.logger.Info("sessions swept", "count", n)
	}
	return int(n), nil
}
