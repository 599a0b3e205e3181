package projections

import (
	"context"
	"fmt"
	"time"

	"carecal/internal/domain/calendar"
	domainEvent "carecal/internal/domain/event"
)

// GetCalendarQuery carries query parameters.
type GetCalendarQuery struct {
	Reference time.Time
	Mode      calendar.ViewMode
	AccountID string // empty for anonymous callers
	Role      string // account role of the caller
}

// GetCalendarDeps holds dependencies for GetCalendar.
type GetCalendarDeps struct {
	EventStore        EventWindowStore
	RegistrationStore RegistrationLookup
	Location          *time.Location
	Slots             []calendar.Slot
	Now               func() time.Time
}

// QueryGetCalendar loads the events of the period around Reference and builds the grid.
// PRE: deps.Location is the resolved display location
// POST: returns a week or month grid; IsUserRegistered is set only for participant and volunteer callers
func QueryGetCalendar(ctx context.Context, query GetCalendarQuery, deps GetCalendarDeps) (calendar.Grid, error) {
	if deps.Location == nil {
		return calendar.Grid{}, calendar.ErrNoLocation
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	ref := query.Reference
	if ref.IsZero() {
		ref = now()
	}

	from, to, err := periodBounds(ref, query.Mode, deps.Location)
	if err != nil {
		return calendar.Grid{}, err
	}
	summaries, err := deps.EventStore.ListBetween(ctx, from, to)
	if err != nil {
		return calendar.Grid{}, fmt.Errorf("list events: %w", err)
	}

	role := calendar.ParseRole(query.Role)
	records, err := recordsFor(ctx, summaries, query.AccountID, role, deps.RegistrationStore)
	if err != nil {
		return calendar.Grid{}, err
	}

	opts := []calendar.Option{calendar.WithNow(now)}
	if len(deps.Slots) > 0 {
		opts = append(opts, calendar.WithSlots(deps.Slots))
	}
	return calendar.BuildGrid(records, ref, query.Mode, deps.Location, role, opts...)
}

// periodBounds returns the half-open instant range covering every cell of the grid.
func periodBounds(ref time.Time, mode calendar.ViewMode, loc *time.Location) (time.Time, time.Time, error) {
	var first, last calendar.Date
	switch mode {
	case calendar.ViewWeek:
		days := calendar.WeekRange(ref, loc)
		first, last = days[0], days[len(days)-1]
	case calendar.ViewMonth:
		days := calendar.MonthRange(ref, loc)
		first, last = days[0].Date, days[len(days)-1].Date
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", calendar.ErrInvalidViewMode, mode)
	}
	return first.In(loc), last.AddDays(1).In(loc), nil
}

// recordsFor converts summaries into grid records, marking the caller's registrations.
func recordsFor(ctx context.Context, summaries []domainEvent.Summary, accountID string, role calendar.Role, regs RegistrationLookup) ([]calendar.EventRecord, error) {
	registered := map[string]bool{}
	if accountID != "" && regs != nil && len(summaries) > 0 && (role == calendar.RoleParticipant || role == calendar.RoleVolunteer) {
		ids := make([]string, len(summaries))
		for i, s := range summaries {
			ids[i] = s.ID
		}
		var err error
		registered, err = regs.EventIDsForAccount(ctx, accountID, ids)
		if err != nil {
			return nil, fmt.Errorf("load registrations: %w", err)
		}
	}

	records := make([]calendar.EventRecord, len(summaries))
	for i, s := range summaries {
		records[i] = s.Record(registered[s.ID])
	}
	return records, nil
}
