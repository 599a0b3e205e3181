package registration

import (
	"context"

	domain "carecal/internal/domain/registration"
)

// Store persists Registration state.
type Store interface {
	// RegisterWithinCapacity inserts reg if the event exists, the account is not
	// already registered in that role, and the role's cap is not reached.
	// PRE: reg has been validated
	// POST: inserted, or one of ErrEventFull, ErrAlreadyRegistered, event.ErrNotFound
	RegisterWithinCapacity(ctx context.Context, reg domain.Registration) error

	// Unregister removes the registration for (eventID, accountID, role).
	// POST: removed, or ErrNotRegistered
	Unregister(ctx context.Context, eventID, accountID, role string) error

	ListByEvent(ctx context.Context, eventID string) ([]Registrant, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.Registration, error)
	EventIDsForAccount(ctx context.Context, accountID string, eventIDs []string) (map[string]bool, error)
}

// Registrant is a registration joined with the account's display fields.
type Registrant struct {
	domain.Registration
	FullName string
	Email    string
	Phone    string
}
