package registration

import (
	"errors"
	"time"
)

// Role constants. A registration is either as a participant or as a volunteer.
const (
	RoleParticipant = "participant"
	RoleVolunteer   = "volunteer"
)

// Domain errors.
var (
	ErrEventFull         = errors.New("event is full")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrNotRegistered     = errors.New("not registered for this event")
	ErrInvalidRole       = errors.New("registration role must be 'participant' or 'volunteer'")
)

// Registration records that an account has signed up for an event.
// INVARIANT: (EventID, AccountID, Role) is unique.
type Registration struct {
	ID        string
	EventID   string
	AccountID string
	Role      string
	CreatedAt time.Time
}

// Validate checks the registration's invariants.
// PRE: r fields may be empty (validation will catch this).
// POST: Returns nil if valid, error with descriptive message otherwise.
func (r *Registration) Validate() error {
	if r.EventID == "" {
		return errors.New("event_id is required")
	}
	if r.AccountID == "" {
		return errors.New("account_id is required")
	}
	if r.Role != RoleParticipant && r.Role != RoleVolunteer {
		return ErrInvalidRole
	}
	return nil
}
