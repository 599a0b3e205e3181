package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ViewMode selects the grid shape.
type ViewMode string

// View mode constants.
const (
	ViewWeek  ViewMode = "week"  // 7 cells, Monday first
	ViewMonth ViewMode = "month" // 42 cells, 6 rows x 7 columns
)

// Grid sizes.
const (
	WeekCells  = 7
	MonthCells = 42
)

// Domain errors.
var (
	ErrInvalidViewMode = errors.New("view mode must be 'week' or 'month'")
	ErrInvalidTimezone = errors.New("invalid display timezone")
	ErrNoLocation      = errors.New("display location is required")
	ErrInvalidSlot     = errors.New("invalid slot label")
	ErrDuplicateSlot   = errors.New("duplicate slot hour")
)

// ParseViewMode converts a query value into a ViewMode.
// PRE: none
// POST: returns ViewWeek or ViewMonth, or ErrInvalidViewMode
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewWeek:
		return ViewWeek, nil
	case ViewMonth:
		return ViewMonth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
}

// Role is the caller's role as seen by the grid. Role-specific rendering is a
// switch on this tag.
type Role int

// Role constants.
const (
	RoleNone Role = iota
	RoleStaff
	RoleParticipant
	RoleVolunteer
)

// ParseRole maps an account role name onto a Role. Unknown names map to RoleNone.
func ParseRole(s string) Role {
	switch s {
	case "staff":
		return RoleStaff
	case "participant":
		return RoleParticipant
	case "volunteer":
		return RoleVolunteer
	}
	return RoleNone
}

// String returns the account role name, or "" for RoleNone.
func (r Role) String() string {
	switch r {
	case RoleStaff:
		return "staff"
	case RoleParticipant:
		return "participant"
	case RoleVolunteer:
		return "volunteer"
	}
	return ""
}

// EventRecord is a flat event as supplied by the event store.
// Start is a pointer so that a record without a start can be represented and skipped.
// INVARIANT: the grid never mutates a record it is given.
type EventRecord struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Start                  *time.Time `json:"startInstant"`
	End                    *time.Time `json:"endInstant,omitempty"`
	Location               string     `json:"location,omitempty"`
	Description            string     `json:"description,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	DisabledFriendly       bool       `json:"disabledFriendly"`
	MaxParticipants        *int       `json:"maxParticipants"`
	MaxVolunteers          *int       `json:"maxVolunteers"`
	RegisteredParticipants int        `json:"registeredParticipants"`
	RegisteredVolunteers   int        `json:"registeredVolunteers"`
	IsUserRegistered       bool       `json:"isUserRegistered"`
}

// DefaultDuration is the display duration of an event with no end.
const DefaultDuration = time.Hour

// Date is a calendar day with no time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// noonUTC anchors civil-date arithmetic away from any DST transition.
func (d Date) noonUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date {
	y, m, day := d.noonUTC().AddDate(0, 0, n).Date()
	return Date{Year: y, Month: m, Day: day}
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	return d.noonUTC().Weekday()
}

// In returns midnight of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	return d.noonUTC().Before(o.noonUTC())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// isoWeekday returns 1 for Monday through 7 for Sunday.
func isoWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}

// LoadDisplayLocation resolves the configured display timezone.
// An empty name and "Local" are rejected: the display zone is never ambient.
// PRE: none
// POST: returns a non-nil location or an error wrapping ErrInvalidTimezone
func LoadDisplayLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// lessID orders ids numerically when both are integers, lexically otherwise.
func lessID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
