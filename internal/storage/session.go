package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ledger/internal/session"
)

const createSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
    sid        TEXT    PRIMARY KEY,
    data       BLOB    NOT NULL,
    expires_at INTEGER NOT NULL
)`

var _ session.Store = (*SessionStore)(nil)

// SessionStore persists sessions in the ledger database. The table is created
// on first use so the store works against any database file.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	ready bool
}

func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SessionStore) ensureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("session: create table: %w", err)
	}
	s.ready = true
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sid string) ([]byte, bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, false, err
	}
	query, args, err := psql.Select("data").From("sessions").
		Where(sq.Eq{"sid": sid}).
		Where(sq.Gt{"expires_at": s.now().Unix()}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("session: build query: %w", err)
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: get: %w", err)
	}
	return data, true, nil
}

func (s *SessionStore) Set(ctx context.Context, sid string, data []byte) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	expires := s.now().Add(s.ttl).Unix()
	query, args, err := psql.Insert("sessions").
		Columns("sid", "data", "expires_at").
		Values(sid, data, expires).
		Suffix("ON CONFLICT(sid) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("session: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("session: set: %w", err)
	}
	return nil
}

func (s *SessionStore) Touch(ctx context.Context, sid string) (bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return false, err
	}
	now := s.now()
	query, args, err := psql.Update("sessions").
		Set("expires_at", now.Add(s.ttl).Unix()).
		Where(sq.Eq{"sid": sid}).
		Where(sq.Gt{"expires_at": now.Unix()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("session: build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("session: touch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session: touch: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) Destroy(ctx context.Context, sid string) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	query, args, err := psql.Delete("sessions").Where(sq.Eq{"sid": sid}).ToSql()
	if err != nil {
		return fmt.Errorf("session: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// CleanExpired deletes expired sessions and returns how many were removed.
// It is driven by cache.Manager, which has no error channel, so failures are logged.
func (s *SessionStore) CleanExpired() int {
	ctx := context.Background()
	if err := s.ensureTable(ctx); err != nil {
		slog.Error("Session prune failed", "error", err)
		return 0
	}
	query, args, err := psql.Delete("sessions").Where(sq.LtOrEq{"expires_at": s.now().Unix()}).ToSql()
	if err != nil {
		slog.Error("Session prune failed", "error", err)
		return 0
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("Session prune failed", "error", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
