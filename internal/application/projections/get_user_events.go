package projections

import (
	"context"
	"fmt"
	"time"

	"carecal/internal/adapters/storage/event"
	"carecal/internal/adapters/storage/registration"
	"carecal/internal/application/listutil"
	"carecal/internal/domain/calendar"
	domainRegistration "carecal/internal/domain/registration"
)

// GetUserEventsQuery carries query parameters.
type GetUserEventsQuery struct {
	AccountID string
	Role      string // registration role: participant or volunteer
	When      string
}

// GetUserEventsResult carries the query result.
type GetUserEventsResult struct {
	Events []calendar.EventView `json:"events"`
}

// GetUserEventsDeps holds dependencies for GetUserEvents.
type GetUserEventsDeps struct {
	EventStore RegisteredEventStore
	Location   *time.Location
	Now        func() time.Time
}

// QueryGetUserEvents lists the events an account is registered for in one role.
// PRE: query.Role is a registration role; deps.Location is non-nil
// POST: every returned event carries IsUserRegistered = true
func QueryGetUserEvents(ctx context.Context, query GetUserEventsQuery, deps GetUserEventsDeps) (GetUserEventsResult, error) {
	if query.Role != domainRegistration.RoleParticipant && query.Role != domainRegistration.RoleVolunteer {
		return GetUserEventsResult{}, domainRegistration.ErrInvalidRole
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	when := query.When
	if when == "" {
		when = listutil.WhenAll
	}

	summaries, err := deps.EventStore.ListRegistered(ctx, query.AccountID, query.Role, event.ListFilter{When: when, Now: now()})
	if err != nil {
		return GetUserEventsResult{}, fmt.Errorf("list registered events: %w", err)
	}

	role := calendar.ParseRole(query.Role)
	views := make([]calendar.EventView, 0, len(summaries))
	for _, s := range summaries {
		rec := s.Record(true)
		if rec.Start == nil {
			continue
		}
		views = append(views, calendar.Annotate(rec, role, deps.Location))
	}
	return GetUserEventsResult{Events: views}, nil
}

// GetEventRegistrationsResult carries an event with its roster.
type GetEventRegistrationsResult struct {
	Event        calendar.EventView        `json:"event"`
	Participants []registration.Registrant `json:"participants"`
	Volunteers   []registration.Registrant `json:"volunteers"`
}

// GetEventRegistrationsDeps holds dependencies for GetEventRegistrations.
type GetEventRegistrationsDeps struct {
	EventStore        EventLookup
	RegistrationStore RegistrantStore
	Location          *time.Location
}

// QueryGetEventRegistrations returns an event and who is registered for it, split by role.
// PRE: eventID is non-empty
// POST: returns event.ErrNotFound (wrapped) for an unknown event
func QueryGetEventRegistrations(ctx context.Context, eventID string, deps GetEventRegistrationsDeps) (GetEventRegistrationsResult, error) {
	s, err := deps.EventStore.GetByID(ctx, eventID)
	if err != nil {
		return GetEventRegistrationsResult{}, err
	}
	regs, err := deps.RegistrationStore.ListByEvent(ctx, eventID)
	if err != nil {
		return GetEventRegistrationsResult{}, fmt.Errorf("list registrations: %w", err)
	}

	result := GetEventRegistrationsResult{
		Event:        calendar.Annotate(s.Record(false), calendar.RoleStaff, deps.Location),
		Participants: []registration.Registrant{},
		Volunteers:   []registration.Registrant{},
	}
	for _, r := range regs {
		if r.Role == domainRegistration.RoleVolunteer {
			result.Volunteers = append(result.Volunteers, r)
		} else {
			result.Participants = append(result.Participants, r)
		}
	}
	return result, nil
}
