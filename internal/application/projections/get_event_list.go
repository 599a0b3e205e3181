package projections

import (
	"context"
	"fmt"
	"time"

	"carecal/internal/adapters/storage/event"
	"carecal/internal/application/listutil"
	"carecal/internal/domain/calendar"
)

// GetEventListQuery carries query parameters.
type GetEventListQuery struct {
	listutil.ListParams
	AccountID string
	Role      string
}

// GetEventListResult carries the query result.
type GetEventListResult struct {
	Events []calendar.EventView `json:"events"`
	Page   listutil.PageInfo    `json:"page"`
	Search string               `json:"search,omitempty"`
	When   string               `json:"when"`
}

// GetEventListDeps holds dependencies for GetEventList.
type GetEventListDeps struct {
	EventStore        EventListStore
	RegistrationStore RegistrationLookup
	Location          *time.Location
	Now               func() time.Time
}

// QueryGetEventList returns one page of events matching the search and when filter.
// PRE: deps.Location is non-nil
// POST: events are ordered as the store returns them; page info reflects the filtered total
func QueryGetEventList(ctx context.Context, query GetEventListQuery, deps GetEventListDeps) (GetEventListResult, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	when := query.When
	if when == "" {
		when = listutil.WhenAll
	}
	filter := event.ListFilter{Search: query.Search, When: when, Now: now()}

	total, err := deps.EventStore.Count(ctx, filter)
	if err != nil {
		return GetEventListResult{}, fmt.Errorf("count events: %w", err)
	}
	page := listutil.NewPageInfo(query.Page, query.PerPage, total)
	filter.Limit = page.PerPage
	filter.Offset = page.Offset()

	summaries, err := deps.EventStore.List(ctx, filter)
	if err != nil {
		return GetEventListResult{}, fmt.Errorf("list events: %w", err)
	}

	role := calendar.ParseRole(query.Role)
	records, err := recordsFor(ctx, summaries, query.AccountID, role, deps.RegistrationStore)
	if err != nil {
		return GetEventListResult{}, err
	}
	views := make([]calendar.EventView, 0, len(records))
	for _, rec := range records {
		if rec.Start == nil {
			continue
		}
		views = append(views, calendar.Annotate(rec, role, deps.Location))
	}

	return GetEventListResult{Events: views, Page: page, Search: query.Search, When: when}, nil
}
