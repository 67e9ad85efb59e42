package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lock inserts are conditional: a row is only written when the page has no
// lock that is still valid at the new lock's locked_at. Lock times are unix
// milliseconds, like event times.
const (
	insertLockFull = `INSERT INTO winner_locks (page, test_id, winner, reason, locked_at, expires_at, metadata)
		SELECT ?{text}, ?{text}, ?{text}, ?{text}, ?{bigint}, ?{bigint}, ?{text}
		WHERE NOT EXISTS (
			SELECT 1 FROM winner_locks
			WHERE page = ? AND (expires_at IS NULL OR expires_at > ?)
		)
		RETURNING id`

	insertLockMinimal = `INSERT INTO winner_locks (page, test_id, winner, locked_at)
		SELECT ?{text}, ?{text}, ?{text}, ?{bigint}
		WHERE NOT EXISTS (SELECT 1 FROM winner_locks WHERE page = ?)
		RETURNING id`
)

// typed expands ?{type} markers. Postgres cannot infer parameter types in an
// INSERT ... SELECT list, so it gets explicit casts; SQLite does not need them.
func (s *SQLStore) typed(query string) string {
	for _, t := range []string{"text", "bigint"} {
		cast := ""
		if s.dialect == dialectPostgres {
			cast = "::" + t
		}
		query = strings.ReplaceAll(query, "?{"+t+"}", "?"+cast)
	}
	return s.rebind(query)
}

func (s *SQLStore) lockColumns() string {
	if s.profile == WriteProfileFull {
		return `id, page, test_id, winner, locked_at, reason, expires_at, metadata`
	}
	return `id, page, test_id, winner, locked_at`
}

func (s *SQLStore) scanLock(row rowScanner) (*WinnerLock, error) {
	var l WinnerLock
	var lockedAt int64

	if s.profile != WriteProfileFull {
		if err := row.Scan(&l.ID, &l.Page, &l.TestID, &l.Winner, &lockedAt); err != nil {
			return nil, err
		}
		l.LockedAt = time.UnixMilli(lockedAt)
		return &l, nil
	}

	var expiresAt sql.NullInt64
	var meta sql.NullString
	if err := row.Scan(&l.ID, &l.Page, &l.TestID, &l.Winner, &lockedAt, &l.Reason, &expiresAt, &meta); err != nil {
		return nil, err
	}
	l.LockedAt = time.UnixMilli(lockedAt)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		l.ExpiresAt = &t
	}
	l.Metadata = decodeJSON(meta)
	return &l, nil
}

// LatestLock returns the most recently written lock for page, valid or not.
func (s *SQLStore) LatestLock(ctx context.Context, page string) (*WinnerLock, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+s.lockColumns()+` FROM winner_locks
		 WHERE page = ?
		 ORDER BY locked_at DESC, id DESC LIMIT 1`), page)

	lock, err := s.scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return lock, nil
}

// InsertLock writes lock using the negotiated profile. Under the minimal
// profile reason, expiry and metadata are not stored and the returned lock
// reflects that.
func (s *SQLStore) InsertLock(ctx context.Context, lock *WinnerLock) (*WinnerLock, error) {
	if lock.LockedAt.IsZero() {
		lock.LockedAt = time.Now()
	}
	lockedAt := lock.LockedAt.UnixMilli()

	saved := &WinnerLock{
		Page:     lock.Page,
		TestID:   lock.TestID,
		Winner:   lock.Winner,
		LockedAt: time.UnixMilli(lockedAt),
	}

	var row *sql.Row
	if s.profile == WriteProfileFull {
		meta, err := encodeJSON(lock.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lock metadata: %w", err)
		}
		row = s.db.QueryRowContext(ctx, s.typed(insertLockFull),
			lock.Page, lock.TestID, lock.Winner, lock.Reason, lockedAt, nullableUnixMilli(lock.ExpiresAt), meta,
			lock.Page, lockedAt,
		)
		saved.Reason = lock.Reason
		if lock.ExpiresAt != nil {
			t := time.UnixMilli(lock.ExpiresAt.UnixMilli())
			saved.ExpiresAt = &t
		}
		saved.Metadata = lock.Metadata
	} else {
		row = s.db.QueryRowContext(ctx, s.typed(insertLockMinimal),
			lock.Page, lock.TestID, lock.Winner, lockedAt,
			lock.Page,
		)
	}

	err := row.Scan(&saved.ID)
	if errors.Is(err, sql.ErrNoRows) || isConstraintError(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert lock: %w", err)
	}
	return saved, nil
}

// ListLocks returns every lock row for page, newest first.
func (s *SQLStore) ListLocks(ctx context.Context, page string) ([]*WinnerLock, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+s.lockColumns()+` FROM winner_locks
		 WHERE page = ?
		 ORDER BY locked_at DESC, id DESC`), page)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer rows.Close()

	var locks []*WinnerLock
	for rows.Next() {
		l, err := s.scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func (s *SQLStore) DeleteLocks(ctx context.Context, page string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM winner_locks WHERE page = ?`), page)
	if err != nil {
		return 0, fmt.Errorf("failed to delete locks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
