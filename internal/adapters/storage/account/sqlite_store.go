package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"carecal/internal/adapters/storage"
	domain "carecal/internal/domain/account"
)

const accountColumns = "id, email, phone, full_name, password_hash, role, created_at, failed_logins, locked_until"

type SQLiteStore struct {
	db storage.SQLDB
}

func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return s.getOne(ctx, "id", id)
}

func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.getOne(ctx, "lower(email)", strings.ToLower(email))
}

func (s *SQLiteStore) GetByPhone(ctx context.Context, phone string) (domain.Account, error) {
	return s.getOne(ctx, "phone", phone)
}

func (s *SQLiteStore) getOne(ctx context.Context, column, value string) (domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM account WHERE " + column + " = ?"
	entity, err := scanAccount(s.db.QueryRowContext(ctx, query, value).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrNotFound, value)
	}
	return entity, err
}

// Save upserts every column except id and created_at.
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Account) error {
	updates := []string{
		"email=excluded.email",
		"phone=excluded.phone",
		"full_name=excluded.full_name",
		"password_hash=excluded.password_hash",
		"role=excluded.role",
		"failed_logins=excluded.failed_logins",
		"locked_until=excluded.locked_until",
	}
	query := fmt.Sprintf(
		"INSERT INTO account (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET %s",
		accountColumns,
		strings.Join(updates, ", "),
	)

	_, err := s.db.ExecContext(ctx, query,
		entity.ID,
		storage.NullString(strings.TrimSpace(entity.Email)),
		storage.NullString(entity.Phone),
		entity.FullName,
		entity.PasswordHash,
		entity.Role,
		storage.FormatTime(entity.CreatedAt),
		entity.FailedLogins,
		storage.NullTime(entity.LockedUntil),
	)
	return mapConstraint(err)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM account WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

// List returns accounts ordered by name, then creation time.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Account, error) {
	where, args := filterClause(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT " + accountColumns + " FROM account" + where +
		" ORDER BY full_name COLLATE NOCASE, created_at LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM account"+where, args...).Scan(&n)
	return n, err
}

func filterClause(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Role != "" {
		clauses = append(clauses, "role = ?")
		args = append(args, filter.Role)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		clauses = append(clauses, `(lower(full_name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var email, phone, lockedUntil sql.NullString
	var createdAt string
	err := scan(
		&entity.ID,
		&email,
		&phone,
		&entity.FullName,
		&entity.PasswordHash,
		&entity.Role,
		&createdAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if err != nil {
		return domain.Account{}, err
	}
	entity.Email = email.String
	entity.Phone = phone.String
	entity.CreatedAt, _ = storage.ParseTime(createdAt)
	entity.LockedUntil = storage.ParseNullTime(lockedUntil)
	return entity, nil
}

// mapConstraint turns the unique index violations into domain errors.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: account.email"):
		return domain.ErrDuplicateEmail
	case strings.Contains(msg, "UNIQUE constraint failed: account.phone"):
		return domain.ErrDuplicatePhone
	}
	return err
}
