package projections

import (
	"context"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"carecal/internal/adapters/storage/event"
	domainEvent "carecal/internal/domain/event"
	domainRegistration "carecal/internal/domain/registration"
)

// Feed window defaults.
const (
	DefaultFeedLookback = 30 * 24 * time.Hour
	DefaultFeedHorizon  = 180 * 24 * time.Hour
)

// FeedEventStore interface for the events exported to a calendar feed.
type FeedEventStore interface {
	EventWindowStore
	RegisteredEventStore
}

// GetCalendarFeedQuery carries query parameters.
type GetCalendarFeedQuery struct {
	AccountID string
	Role      string
	// OnlyRegistered restricts the feed to the caller's upcoming registrations.
	OnlyRegistered bool
}

// GetCalendarFeedDeps holds dependencies for GetCalendarFeed.
type GetCalendarFeedDeps struct {
	EventStore FeedEventStore
	Now        func() time.Time
	BaseURL    string
	Name       string
	Timezone   string
	Lookback   time.Duration
	Horizon    time.Duration
}

// QueryGetCalendarFeed renders events as an iCalendar document.
// PRE: OnlyRegistered requires a participant or volunteer caller
// POST: one VEVENT per event, UID "<id>@<host>", times in UTC
func QueryGetCalendarFeed(ctx context.Context, query GetCalendarFeedQuery, deps GetCalendarFeedDeps) (string, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	at := now()

	var summaries []domainEvent.Summary
	var err error
	if query.OnlyRegistered {
		if query.Role != domainRegistration.RoleParticipant && query.Role != domainRegistration.RoleVolunteer {
			return "", domainRegistration.ErrInvalidRole
		}
		summaries, err = deps.EventStore.ListRegistered(ctx, query.AccountID, query.Role, event.ListFilter{When: event.WhenUpcoming, Now: at})
	} else {
		lookback, horizon := deps.Lookback, deps.Horizon
		if lookback <= 0 {
			lookback = DefaultFeedLookback
		}
		if horizon <= 0 {
			horizon = DefaultFeedHorizon
		}
		summaries, err = deps.EventStore.ListBetween(ctx, at.Add(-lookback), at.Add(horizon))
	}
	if err != nil {
		return "", fmt.Errorf("list feed events: %w", err)
	}

	base := strings.TrimRight(deps.BaseURL, "/")
	host := uidHost(base)
	name := deps.Name
	if name == "" {
		name = "CareCal"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//CareCal//Activities//EN")
	cal.SetXWRCalName(name)
	if deps.Timezone != "" {
		cal.SetXWRTimezone(deps.Timezone)
	}

	for _, s := range summaries {
		if s.Start.IsZero() {
			continue
		}
		ev := cal.AddEvent(s.ID + "@" + host)
		ev.SetDtStampTime(at)
		if !s.CreatedAt.IsZero() {
			ev.SetCreatedTime(s.CreatedAt)
		}
		ev.SetStartAt(s.Start)
		ev.SetEndAt(s.EffectiveEnd())
		ev.SetSummary(s.Title)
		ev.SetLocation(s.Location)
		if desc := feedDescription(s); desc != "" {
			ev.SetDescription(desc)
		}
		if base != "" {
			ev.SetURL(base + "/events/" + s.ID)
		}
	}
	return cal.Serialize(), nil
}

func feedDescription(s domainEvent.Summary) string {
	parts := make([]string, 0, 3)
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	if s.Notes != "" {
		parts = append(parts, s.Notes)
	}
	if s.DisabledFriendly {
		parts = append(parts, "Wheelchair accessible.")
	}
	return strings.Join(parts, "\n\n")
}

// uidHost returns the host part of base, or "carecal" when base has none.
func uidHost(base string) string {
	host := base
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return "carecal"
	}
	return host
}
