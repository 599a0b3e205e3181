package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"carecal/internal/adapters/http/perf"
)

// SQLDB is the database interface used by all stores.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var (
	_ SQLDB = (*sql.DB)(nil)
	_ SQLDB = (*TimedDB)(nil)
)

// DefaultSlowQuery is the latency above which a statement is logged at warn.
const DefaultSlowQuery = 50 * time.Millisecond

// TimedDB labels every statement and reports its latency to a perf collector.
// A nil collector only logs.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	slow      time.Duration
}

// TimedOption configures a TimedDB.
type TimedOption func(*TimedDB)

// WithSlowQuery sets the warn threshold. Non-positive values keep the default.
func WithSlowQuery(d time.Duration) TimedOption {
	return func(t *TimedDB) {
		if d > 0 {
			t.slow = d
		}
	}
}

// NewTimedDB wraps db.
// PRE: db is open
// POST: statements run on db unchanged; each one is recorded once
func NewTimedDB(db *sql.DB, collector *perf.Collector, opts ...TimedOption) *TimedDB {
	t := &TimedDB{db: db, collector: collector, slow: DefaultSlowQuery}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TimedDB) observe(op, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	label := op
	if l := QueryLabel(query); l != "" {
		label = l
	}
	// Row-not-found is an answer, not a failure.
	failed := err != nil && !errors.Is(err, sql.ErrNoRows)

	ms := float64(elapsed.Microseconds()) / 1000.0
	switch {
	case failed:
		slog.Warn("query_failed", "op", label, "duration_ms", ms, "error", err.Error())
	case elapsed >= t.slow:
		slog.Warn("slow_query", "op", label, "duration_ms", ms)
	}

	if t.collector == nil {
		return
	}
	status := 0
	if failed {
		status = 1
	}
	t.collector.Record(perf.Entry{
		Kind:       perf.KindQuery,
		Path:       label,
		StatusCode: status,
		DurationMs: ms,
		Timestamp:  start,
	})
}

// QueryLabel reduces a SQL statement to "VERB table" so timings group
// without leaking argument values. An empty statement yields "".
func QueryLabel(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	verb := strings.ToUpper(fields[0])
	var marker string
	switch verb {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		if len(fields) > 1 {
			return verb + " " + fields[1]
		}
		return verb
	case "WITH":
		// CTEs are labelled by the first table after any FROM.
		marker = "FROM"
	default:
		return verb
	}
	for i, f := range fields {
		if strings.EqualFold(f, marker) && i+1 < len(fields) {
			return verb + " " + strings.Trim(fields[i+1], "(,;")
		}
	}
	return verb
}

func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.db.ExecContext(ctx, query, args...)
	t.observe("exec", query, start, err)
	return res, err
}

func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.observe("query", query, start, err)
	return rows, err
}

func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.observe("query_row", query, start, row.Err())
	return row
}

// BeginTx times only the BEGIN; statements run on the returned *sql.Tx are not wrapped.
func (t *TimedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	start := time.Now()
	tx, err := t.db.BeginTx(ctx, opts)
	t.observe("begin_tx", "", start, err)
	return tx, err
}
