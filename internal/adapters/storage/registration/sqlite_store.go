package registration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"carecal/internal/adapters/storage"
	eventDomain "carecal/internal/domain/event"
	domain "carecal/internal/domain/registration"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new RegistrationStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RegisterWithinCapacity inserts the registration in one transaction.
// The insert itself is conditional on the live count, so two concurrent
// callers can never both take the last place.
// PRE: reg has been validated
// POST: inserted, or a domain error explaining why not
func (s *SQLiteStore) RegisterWithinCapacity(ctx context.Context, reg domain.Registration) error {
	capColumn := "max_participants"
	if reg.Role == domain.RoleVolunteer {
		capColumn = "max_volunteers"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO registration (id, event_id, account_id, role, created_at)
		SELECT ?, e.id, ?, ?, ?
		FROM event e
		WHERE e.id = ?
		  AND (e.`+capColumn+` IS NULL
		       OR (SELECT COUNT(*) FROM registration r WHERE r.event_id = e.id AND r.role = ?) < e.`+capColumn+`)`,
		reg.ID, reg.AccountID, reg.Role, storage.FormatTime(reg.CreatedAt), reg.EventID, reg.Role,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrAlreadyRegistered
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return tx.Commit()
	}

	// Nothing inserted: work out why.
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM event WHERE id = ?", reg.EventID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", eventDomain.ErrNotFound, reg.EventID)
	}
	var already int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM registration WHERE event_id = ? AND account_id = ? AND role = ?",
		reg.EventID, reg.AccountID, reg.Role).Scan(&already); err != nil {
		return err
	}
	if already > 0 {
		return domain.ErrAlreadyRegistered
	}
	return domain.ErrEventFull
}

// Unregister removes a registration.
// PRE: all arguments are non-empty
// POST: registration removed or ErrNotRegistered
func (s *SQLiteStore) Unregister(ctx context.Context, eventID, accountID, role string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM registration WHERE event_id = ? AND account_id = ? AND role = ?",
		eventID, accountID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

// ListByEvent returns an event's registrants ordered by role then sign-up time.
// PRE: eventID is non-empty
// POST: Returns registrants with account display fields
func (s *SQLiteStore) ListByEvent(ctx context.Context, eventID string) ([]Registrant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.event_id, r.account_id, r.role, r.created_at,
		a.full_name, a.email, a.phone
		FROM registration r JOIN account a ON a.id = r.account_id
		WHERE r.event_id = ? ORDER BY r.role, r.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Registrant
	for rows.Next() {
		var reg Registrant
		var created string
		var email, phone sql.NullString
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Role, &created, &reg.FullName, &email, &phone); err != nil {
			return nil, err
		}
		reg.CreatedAt, _ = storage.ParseTime(created)
		reg.Email = email.String
		reg.Phone = phone.String
		results = append(results, reg)
	}
	return results, rows.Err()
}

// ListByAccount returns an account's registrations ordered by sign-up time.
func (s *SQLiteStore) ListByAccount(ctx context.Context, accountID string) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, account_id, role, created_at FROM registration WHERE account_id = ? ORDER BY created_at",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		var created string
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Role, &created); err != nil {
			return nil, err
		}
		reg.CreatedAt, _ = storage.ParseTime(created)
		results = append(results, reg)
	}
	return results, rows.Err()
}

// EventIDsForAccount reports which of eventIDs the account is registered for in any role.
// PRE: accountID is non-empty
// POST: the map holds only IDs with a registration
func (s *SQLiteStore) EventIDsForAccount(ctx context.Context, accountID string, eventIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(eventIDs) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")
	args := make([]any, 0, len(eventIDs)+1)
	args = append(args, accountID)
	for _, id := range eventIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT event_id FROM registration WHERE account_id = ? AND event_id IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}
