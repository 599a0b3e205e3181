package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the column format for every timestamp the stores write.
// Fixed width in UTC, so string comparison in SQL orders chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullTime renders t for a nullable column; the zero time maps to NULL.
func NullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return FormatTime(t)
}

// NullString maps "" to NULL for nullable unique columns.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ParseTime accepts the storage layout and the SQLite default datetime format.
// PRE: none
// POST: returns an error for unrecognised input
func ParseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}

// ParseNullTime parses a nullable column, returning the zero time for NULL.
func ParseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, _ := ParseTime(ns.String)
	return t
}
