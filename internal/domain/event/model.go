package event

import (
	"errors"
	"fmt"
	"time"

	"carecal/internal/domain/calendar"
)

// Max length constants.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxNotesLength       = 2000
	MaxLocationLength    = 200
)

// Domain errors.
var (
	ErrNotFound        = errors.New("event not found")
	ErrEmptyTitle      = errors.New("event title cannot be empty")
	ErrEmptyLocation   = errors.New("event location cannot be empty")
	ErrMissingStart    = errors.New("event start time is required")
	ErrEndBeforeStart  = errors.New("event end time cannot be before start time")
	ErrInvalidCapacity = errors.New("capacity must be a positive number when set")
	ErrTooLong         = errors.New("value too long")

	ErrCapacityBelowRegistered = errors.New("capacity cannot be lower than the number already registered")
)

// Event is a schedulable activity with optional capacity caps.
// INVARIANT: End is zero or not before Start; caps are nil or positive.
type Event struct {
	ID               string
	Title            string
	Description      string // markdown
	Notes            string // additional information
	Location         string
	Start            time.Time
	End              time.Time // zero value means the default one-hour display duration
	DisabledFriendly bool
	MaxParticipants  *int // nil means unlimited
	MaxVolunteers    *int // nil means unlimited
	SeriesID         string
	CreatedBy        string // account ID
	CreatedAt        time.Time
}

// Validate checks the event's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (e *Event) Validate() error {
	if e.Title == "" {
		return ErrEmptyTitle
	}
	if len(e.Title) > MaxTitleLength {
		return fmt.Errorf("%w: event title cannot exceed %d characters", ErrTooLong, MaxTitleLength)
	}
	if e.Location == "" {
		return ErrEmptyLocation
	}
	if len(e.Location) > MaxLocationLength {
		return fmt.Errorf("%w: event location cannot exceed %d characters", ErrTooLong, MaxLocationLength)
	}
	if e.Start.IsZero() {
		return ErrMissingStart
	}
	if !e.End.IsZero() && e.End.Before(e.Start) {
		return ErrEndBeforeStart
	}
	if len(e.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: event description cannot exceed %d characters", ErrTooLong, MaxDescriptionLength)
	}
	if len(e.Notes) > MaxNotesLength {
		return fmt.Errorf("%w: event notes cannot exceed %d characters", ErrTooLong, MaxNotesLength)
	}
	if (e.MaxParticipants != nil && *e.MaxParticipants < 1) || (e.MaxVolunteers != nil && *e.MaxVolunteers < 1) {
		return ErrInvalidCapacity
	}
	return nil
}

// EffectiveEnd returns End, or Start plus the default duration when End is unset.
// INVARIANT: Event fields are not mutated
func (e *Event) EffectiveEnd() time.Time {
	if e.End.IsZero() {
		return e.Start.Add(calendar.DefaultDuration)
	}
	return e.End
}

// IsUpcoming reports whether the event has not yet ended at now.
func (e *Event) IsUpcoming(now time.Time) bool {
	return e.EffectiveEnd().After(now)
}

// Summary is an event with its current registration counts.
type Summary struct {
	Event
	RegisteredParticipants int
	RegisteredVolunteers   int
}

// Record converts the summary into the grid's input shape.
// PRE: none
// POST: Start is nil when the stored start is zero, so the grid skips it
func (s Summary) Record(isUserRegistered bool) calendar.EventRecord {
	rec := calendar.EventRecord{
		ID:                     s.ID,
		Title:                  s.Title,
		Location:               s.Location,
		Description:            s.Description,
		Notes:                  s.Notes,
		DisabledFriendly:       s.DisabledFriendly,
		MaxParticipants:        s.MaxParticipants,
		MaxVolunteers:          s.MaxVolunteers,
		RegisteredParticipants: s.RegisteredParticipants,
		RegisteredVolunteers:   s.RegisteredVolunteers,
		IsUserRegistered:       isUserRegistered,
	}
	if !s.Start.IsZero() {
		start := s.Start
		rec.Start = &start
	}
	if !s.End.IsZero() {
		end := s.End
		rec.End = &end
	}
	return rec
}
