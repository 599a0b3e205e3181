package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carecal/internal/adapters/storage"
	domain "carecal/internal/domain/event"
)

const summarySelect = `SELECT e.id, e.title, e.description, e.notes, e.location, e.start_at, e.end_at,
	e.disabled_friendly, e.max_participants, e.max_volunteers, e.series_id, e.created_by, e.created_at,
	(SELECT COUNT(*) FROM registration r WHERE r.event_id = e.id AND r.role = 'participant'),
	(SELECT COUNT(*) FROM registration r WHERE r.event_id = e.id AND r.role = 'volunteer')
	FROM event e`

// effectiveEnd mirrors Event.EffectiveEnd in SQL: a missing end means one hour after start.
const effectiveEnd = `COALESCE(e.end_at, strftime('%Y-%m-%dT%H:%M:%S.000000000Z', e.start_at, '+1 hour'))`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new EventStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an event summary by its ID.
// PRE: id is non-empty
// POST: Returns the summary or an error wrapping domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Summary, error) {
	row := s.db.QueryRowContext(ctx, summarySelect+" WHERE e.id = ?", id)
	sum, err := scanSummary(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Summary{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return sum, err
}

const upsertEvent = `INSERT INTO event
	(id, title, description, notes, location, start_at, end_at, disabled_friendly,
	 max_participants, max_volunteers, series_id, created_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  title=excluded.title, description=excluded.description, notes=excluded.notes,
	  location=excluded.location, start_at=excluded.start_at, end_at=excluded.end_at,
	  disabled_friendly=excluded.disabled_friendly, max_participants=excluded.max_participants,
	  max_volunteers=excluded.max_volunteers, series_id=excluded.series_id`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, e domain.Event) error {
	_, err := db.ExecContext(ctx, upsertEvent,
		e.ID, e.Title, e.Description, e.Notes, e.Location,
		storage.FormatTime(e.Start), storage.NullTime(e.End), e.DisabledFriendly,
		nullInt(e.MaxParticipants), nullInt(e.MaxVolunteers),
		storage.NullString(e.SeriesID), storage.NullString(e.CreatedBy), storage.FormatTime(e.CreatedAt),
	)
	return err
}

// Save persists an Event to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, e domain.Event) error {
	return upsert(ctx, s.db, e)
}

// SaveAll persists events in one transaction: all of them or none.
// PRE: every event has been validated
func (s *SQLiteStore) SaveAll(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := upsert(ctx, tx, e); err != nil {
			return fmt.Errorf("save event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Update rewrites an existing event's editable fields.
// PRE: entity has been validated
// POST: returns ErrNotFound for an unknown id, or ErrCapacityBelowRegistered
// when a cap is lower than the registrations counted in the same statement
func (s *SQLiteStore) Update(ctx context.Context, e domain.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	maxP, maxV := nullInt(e.MaxParticipants), nullInt(e.MaxVolunteers)
	res, err := tx.ExecContext(ctx, `UPDATE event SET
		  title = ?, description = ?, notes = ?, location = ?, start_at = ?, end_at = ?,
		  disabled_friendly = ?, max_participants = ?, max_volunteers = ?
		WHERE id = ?
		  AND (? IS NULL OR ? >= (SELECT COUNT(*) FROM registration r WHERE r.event_id = event.id AND r.role = 'participant'))
		  AND (? IS NULL OR ? >= (SELECT COUNT(*) FROM registration r WHERE r.event_id = event.id AND r.role = 'volunteer'))`,
		e.Title, e.Description, e.Notes, e.Location,
		storage.FormatTime(e.Start), storage.NullTime(e.End), e.DisabledFriendly,
		maxP, maxV, e.ID, maxP, maxP, maxV, maxV,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return tx.Commit()
	}

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM event WHERE id = ?", e.ID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, e.ID)
	}
	return domain.ErrCapacityBelowRegistered
}

// Delete removes an event; its registrations cascade.
// PRE: id is non-empty
// POST: Entity with given id is removed or ErrNotFound returned
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM event WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteSeries removes every occurrence of a series starting at or after from.
// PRE: seriesID is non-empty
// POST: returns the number of occurrences removed
func (s *SQLiteStore) DeleteSeries(ctx context.Context, seriesID string, from time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM event WHERE series_id = ? AND start_at >= ?",
		seriesID, storage.FormatTime(from))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListBetween returns events starting in [from, to), ordered by start then id.
// PRE: from <= to
// POST: Returns summaries with registration counts
func (s *SQLiteStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Summary, error) {
	return s.query(ctx, summarySelect+" WHERE e.start_at >= ? AND e.start_at < ? ORDER BY e.start_at, e.id",
		storage.FormatTime(from), storage.FormatTime(to))
}

// ListBySeries returns every occurrence of a series ordered by start.
func (s *SQLiteStore) ListBySeries(ctx context.Context, seriesID string) ([]domain.Event, error) {
	sums, err := s.query(ctx, summarySelect+" WHERE e.series_id = ? ORDER BY e.start_at", seriesID)
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, len(sums))
	for i, sum := range sums {
		events[i] = sum.Event
	}
	return events, nil
}

// ListRegistered returns events the account is registered for, in any role when role is "".
// PRE: accountID is non-empty
// POST: Returns summaries ordered by start
func (s *SQLiteStore) ListRegistered(ctx context.Context, accountID, role string, filter ListFilter) ([]domain.Summary, error) {
	var b strings.Builder
	args := []any{accountID}
	b.WriteString(summarySelect)
	b.WriteString(" WHERE EXISTS (SELECT 1 FROM registration r WHERE r.event_id = e.id AND r.account_id = ?")
	if role != "" {
		b.WriteString(" AND r.role = ?")
		args = append(args, role)
	}
	b.WriteString(")")
	args = appendFilter(&b, args, filter, " AND ")
	b.WriteString(orderFor(filter.When))
	args = appendPage(&b, args, filter)
	return s.query(ctx, b.String(), args...)
}

// List retrieves events based on the filter.
// PRE: filter has valid parameters
// POST: Upcoming lists soonest first; past and all list most recent first
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Summary, error) {
	var b strings.Builder
	b.WriteString(summarySelect)
	args := appendFilter(&b, nil, filter, " WHERE ")
	b.WriteString(orderFor(filter.When))
	args = appendPage(&b, args, filter)
	return s.query(ctx, b.String(), args...)
}

// Count returns the number of events matching the filter, ignoring paging.
func (s *SQLiteStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM event e")
	args := appendFilter(&b, nil, filter, " WHERE ")
	var n int
	err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&n)
	return n, err
}

func appendFilter(b *strings.Builder, args []any, filter ListFilter, joiner string) []any {
	var clauses []string
	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		clauses = append(clauses, `(lower(e.title) LIKE ? ESCAPE '\' OR lower(e.location) LIKE ? ESCAPE '\' OR lower(e.description) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	switch filter.When {
	case WhenUpcoming:
		clauses = append(clauses, effectiveEnd+" > ?")
		args = append(args, storage.FormatTime(filter.Now))
	case WhenPast:
		clauses = append(clauses, effectiveEnd+" <= ?")
		args = append(args, storage.FormatTime(filter.Now))
	}
	if len(clauses) > 0 {
		b.WriteString(joiner)
		b.WriteString(strings.Join(clauses, " AND "))
	}
	return args
}

func appendPage(b *strings.Builder, args []any, filter ListFilter) []any {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	return append(args, limit, filter.Offset)
}

func orderFor(when string) string {
	if when == WhenUpcoming {
		return " ORDER BY e.start_at ASC, e.id"
	}
	return " ORDER BY e.start_at DESC, e.id"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Summary
	for rows.Next() {
		sum, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

func scanSummary(scan func(dest ...any) error) (domain.Summary, error) {
	var sum domain.Summary
	var start, created string
	var end, seriesID, createdBy sql.NullString
	var maxP, maxV sql.NullInt64
	err := scan(
		&sum.ID, &sum.Title, &sum.Description, &sum.Notes, &sum.Location,
		&start, &end, &sum.DisabledFriendly, &maxP, &maxV, &seriesID, &createdBy, &created,
		&sum.RegisteredParticipants, &sum.RegisteredVolunteers,
	)
	if err != nil {
		return domain.Summary{}, err
	}
	sum.Start, _ = storage.ParseTime(start)
	sum.End = storage.ParseNullTime(end)
	sum.CreatedAt, _ = storage.ParseTime(created)
	sum.MaxParticipants = intPtr(maxP)
	sum.MaxVolunteers = intPtr(maxV)
	sum.SeriesID = seriesID.String
	sum.CreatedBy = createdBy.String
	return sum, nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
