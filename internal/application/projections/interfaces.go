package projections

import (
	"context"
	"time"

	"carecal/internal/adapters/storage/event"
	"carecal/internal/adapters/storage/registration"
	domainEvent "carecal/internal/domain/event"
)

// EventWindowStore interface for loading the events of a display period.
type EventWindowStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domainEvent.Summary, error)
}

// EventListStore interface for paged event listings.
type EventListStore interface {
	List(ctx context.Context, filter event.ListFilter) ([]domainEvent.Summary, error)
	Count(ctx context.Context, filter event.ListFilter) (int, error)
}

// RegisteredEventStore interface for an account's registered events.
type RegisteredEventStore interface {
	ListRegistered(ctx context.Context, accountID, role string, filter event.ListFilter) ([]domainEvent.Summary, error)
}

// RegistrationLookup interface for marking events the caller is registered for.
type RegistrationLookup interface {
	EventIDsForAccount(ctx context.Context, accountID string, eventIDs []string) (map[string]bool, error)
}

// RegistrantStore interface for an event's registration roster.
type RegistrantStore interface {
	ListByEvent(ctx context.Context, eventID string) ([]registration.Registrant, error)
}

// EventLookup interface for loading one event.
type EventLookup interface {
	GetByID(ctx context.Context, id string) (domainEvent.Summary, error)
}
