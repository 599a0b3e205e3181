package projections

import (
	"context"
	"fmt"
	"time"

	"carecal/internal/adapters/storage/event"
	"carecal/internal/domain/calendar"
	domainRegistration "carecal/internal/domain/registration"
)

// UpcomingReminderLimit caps the reminder list.
const UpcomingReminderLimit = 5

// GetUpcomingRemindersQuery carries query parameters.
type GetUpcomingRemindersQuery struct {
	AccountID string
	Role      string // account role of the caller
}

// ReminderItem is one upcoming registered event, pre-labelled for display.
type ReminderItem struct {
	EventID  string    `json:"eventId"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	Start    time.Time `json:"startInstant"`
	Day      string    `json:"day"`
	Time     string    `json:"time"`
	Duration string    `json:"duration"`
}

// GetUpcomingRemindersResult carries the query result.
type GetUpcomingRemindersResult struct {
	Items []ReminderItem `json:"items"`
}

// GetUpcomingRemindersDeps holds dependencies for GetUpcomingReminders.
type GetUpcomingRemindersDeps struct {
	EventStore RegisteredEventStore
	Location   *time.Location
	Now        func() time.Time
}

// QueryGetUpcomingReminders returns the caller's next registered events, soonest first.
// PRE: deps.Location is non-nil
// POST: at most UpcomingReminderLimit items; staff and anonymous callers get none
func QueryGetUpcomingReminders(ctx context.Context, query GetUpcomingRemindersQuery, deps GetUpcomingRemindersDeps) (GetUpcomingRemindersResult, error) {
	result := GetUpcomingRemindersResult{Items: []ReminderItem{}}
	if query.AccountID == "" || (query.Role != domainRegistration.RoleParticipant && query.Role != domainRegistration.RoleVolunteer) {
		return result, nil
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	at := now()

	summaries, err := deps.EventStore.ListRegistered(ctx, query.AccountID, query.Role, event.ListFilter{
		When:  event.WhenUpcoming,
		Now:   at,
		Limit: UpcomingReminderLimit,
	})
	if err != nil {
		return result, fmt.Errorf("list upcoming events: %w", err)
	}

	for _, s := range summaries {
		end := s.EffectiveEnd()
		result.Items = append(result.Items, ReminderItem{
			EventID:  s.ID,
			Title:    s.Title,
			Location: s.Location,
			Start:    s.Start,
			Day:      calendar.RelativeDayLabel(s.Start, at, deps.Location),
			Time:     calendar.TimeRangeLabel(s.Start, end, deps.Location),
			Duration: calendar.DurationLabel(s.Start, end),
		})
	}
	return result, nil
}
