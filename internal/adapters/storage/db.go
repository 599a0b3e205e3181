package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// DSNPragmas are appended to the database path when opening a file-backed database.
const DSNPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is applied in order. Never edit an applied step; append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "baseline",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS account (
				id TEXT PRIMARY KEY,
				email TEXT,
				phone TEXT,
				full_name TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL,
				created_at TEXT NOT NULL,
				failed_logins INTEGER NOT NULL DEFAULT 0,
				locked_until TEXT
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_account_email ON account(email) WHERE email IS NOT NULL`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_account_phone ON account(phone) WHERE phone IS NOT NULL`,
			`CREATE TABLE IF NOT EXISTS event (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL,
				start_at TEXT NOT NULL,
				end_at TEXT,
				disabled_friendly INTEGER NOT NULL DEFAULT 0,
				max_participants INTEGER,
				max_volunteers INTEGER,
				series_id TEXT,
				created_by TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_event_start ON event(start_at)`,
			`CREATE INDEX IF NOT EXISTS idx_event_series ON event(series_id)`,
			`CREATE TABLE IF NOT EXISTS registration (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL,
				account_id TEXT NOT NULL,
				role TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE (event_id, account_id, role),
				FOREIGN KEY (event_id) REFERENCES event(id) ON DELETE CASCADE,
				FOREIGN KEY (account_id) REFERENCES account(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_registration_account ON registration(account_id)`,
			`CREATE TABLE IF NOT EXISTS otp_challenge (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL,
				phone TEXT NOT NULL,
				code_hash TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				used INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				FOREIGN KEY (account_id) REFERENCES account(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_otp_phone ON otp_challenge(phone, created_at)`,
		},
	},
	{
		version: 2,
		name:    "outbox",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS outbox_entry (
				id TEXT PRIMARY KEY,
				action_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				last_attempted_at TEXT,
				created_at TEXT NOT NULL,
				external_id TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				dedupe_key TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_entry(status)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_dedupe ON outbox_entry(dedupe_key) WHERE dedupe_key IS NOT NULL`,
		},
	},
}

// LatestSchemaVersion returns the version the migration chain ends at.
// PRE: none
// POST: returns the highest migration version
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the currently applied schema version, or 0 for an untracked database.
// PRE: db is a valid connection
// POST: returns version >= 0
func SchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var v sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB applies every pending migration, each in its own transaction.
// PRE: db is a valid connection; path names the database file (":memory:" for tests)
// POST: SchemaVersion(db) == LatestSchemaVersion(); existing rows are preserved
func MigrateDB(db *sql.DB, path string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) on %s: %w", m.version, m.name, path, err)
		}
		slog.Info("schema_migrated", "version", m.version, "name", m.name, "path", path)
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
