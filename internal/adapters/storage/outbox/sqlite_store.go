package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carecal/internal/adapters/storage"
	domain "carecal/internal/domain/outbox"
)

const entryColumns = "id, action_type, payload, status, attempts, max_attempts, last_attempted_at, created_at, external_id, error_message, dedupe_key"

type SQLiteStore struct {
	db storage.SQLDB
}

func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM outbox_entry WHERE id = ?", id)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e, err
}

// Enqueue relies on INSERT OR IGNORE against the unique dedupe_key index.
func (s *SQLiteStore) Enqueue(ctx context.Context, e domain.Entry) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO outbox_entry ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entryArgs(e)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox_entry (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, external_id=excluded.external_id,
		   error_message=excluded.error_message`,
		entryArgs(e)...)
	return err
}

func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx,
		"SELECT "+entryColumns+" FROM outbox_entry WHERE status IN (?, ?) ORDER BY created_at ASC, id LIMIT ?",
		domain.StatusPending, domain.StatusRetrying, limit)
}

func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx,
		"SELECT "+entryColumns+" FROM outbox_entry WHERE status = ? ORDER BY last_attempted_at DESC, id LIMIT ?",
		domain.StatusFailed, limit)
}

// PurgeSettled deletes done and abandoned entries created before cutoff.
func (s *SQLiteStore) PurgeSettled(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM outbox_entry WHERE status IN (?, ?) AND created_at < ?",
		domain.StatusDone, domain.StatusAbandoned, storage.FormatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func entryArgs(e domain.Entry) []any {
	return []any{
		e.ID, e.ActionType, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		storage.NullTime(e.LastAttemptedAt), storage.FormatTime(e.CreatedAt),
		e.ExternalID, e.ErrorMessage, storage.NullString(e.DedupeKey),
	}
}

func scanEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var createdAt string
	var lastAttemptedAt, dedupeKey sql.NullString
	err := scan(&e.ID, &e.ActionType, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttemptedAt, &createdAt, &e.ExternalID, &e.ErrorMessage, &dedupeKey)
	if err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt, _ = storage.ParseTime(createdAt)
	e.LastAttemptedAt = storage.ParseNullTime(lastAttemptedAt)
	e.DedupeKey = dedupeKey.String
	return e, nil
}
