package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carecal/internal/adapters/storage"
	domain "carecal/internal/domain/otp"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new OTP challenge store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts or updates a challenge.
// PRE: c.ID and c.AccountID are non-empty
// POST: the challenge's attempts and used flag are persisted
func (s *SQLiteStore) Save(ctx context.Context, c domain.Challenge) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO otp_challenge
		(id, account_id, phone, code_hash, expires_at, attempts, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET attempts=excluded.attempts, used=excluded.used`,
		c.ID, c.AccountID, c.Phone, c.CodeHash,
		storage.FormatTime(c.ExpiresAt), c.Attempts, c.Used, storage.FormatTime(c.CreatedAt))
	return err
}

// LatestForPhone returns the newest unused challenge for phone.
// PRE: phone is normalized
// POST: Returns the challenge or an error wrapping domain.ErrNotFound
func (s *SQLiteStore) LatestForPhone(ctx context.Context, phone string) (domain.Challenge, error) {
	var c domain.Challenge
	var expires, created string
	err := s.db.QueryRowContext(ctx, `SELECT id, account_id, phone, code_hash, expires_at, attempts, used, created_at
		FROM otp_challenge WHERE phone = ? AND used = 0 ORDER BY created_at DESC LIMIT 1`, phone).
		Scan(&c.ID, &c.AccountID, &c.Phone, &c.CodeHash, &expires, &c.Attempts, &c.Used, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("%w: %s", domain.ErrNotFound, phone)
	}
	if err != nil {
		return domain.Challenge{}, err
	}
	c.ExpiresAt, _ = storage.ParseTime(expires)
	c.CreatedAt, _ = storage.ParseTime(created)
	return c, nil
}

// CountSince returns how many challenges were issued to phone since the given time.
func (s *SQLiteStore) CountSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM otp_challenge WHERE phone = ? AND created_at >= ?",
		phone, storage.FormatTime(since)).Scan(&n)
	return n, err
}

// DeleteExpired removes challenges that expired before the given time.
// POST: returns the number of rows removed
func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM otp_challenge WHERE expires_at < ?", storage.FormatTime(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
