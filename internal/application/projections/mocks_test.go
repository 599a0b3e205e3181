package projections

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"carecal/internal/adapters/storage/event"
	"carecal/internal/adapters/storage/registration"
	domainEvent "carecal/internal/domain/event"
)

// 10:00 Singapore on Sunday 1 March 2026.
var testNow = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func intPtr(n int) *int { return &n }

type mockEventStore struct {
	events     []domainEvent.Summary
	registered map[string][]string // accountID -> event IDs
	windows    [][2]time.Time
	lastFilter event.ListFilter
}

func newMockEventStore(events ...domainEvent.Summary) *mockEventStore {
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return &mockEventStore{events: events, registered: make(map[string][]string)}
}

func (m *mockEventStore) GetByID(_ context.Context, id string) (domainEvent.Summary, error) {
	for _, s := range m.events {
		if s.ID == id {
			return s, nil
		}
	}
	return domainEvent.Summary{}, fmt.Errorf("%w: %s", domainEvent.ErrNotFound, id)
}

func (m *mockEventStore) ListBetween(_ context.Context, from, to time.Time) ([]domainEvent.Summary, error) {
	m.windows = append(m.windows, [2]time.Time{from, to})
	var out []domainEvent.Summary
	for _, s := range m.events {
		if !s.Start.Before(from) && s.Start.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockEventStore) matching(filter event.ListFilter, ids map[string]bool) []domainEvent.Summary {
	var out []domainEvent.Summary
	for _, s := range m.events {
		if ids != nil && !ids[s.ID] {
			continue
		}
		if q := strings.ToLower(filter.Search); q != "" && !strings.Contains(strings.ToLower(s.Title), q) {
			continue
		}
		switch filter.When {
		case event.WhenUpcoming:
			if !s.IsUpcoming(filter.Now) {
				continue
			}
		case event.WhenPast:
			if s.IsUpcoming(filter.Now) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func page(all []domainEvent.Summary, filter event.ListFilter) []domainEvent.Summary {
	if filter.Offset >= len(all) {
		return nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all
}

func (m *mockEventStore) List(_ context.Context, filter event.ListFilter) ([]domainEvent.Summary, error) {
	m.lastFilter = filter
	return page(m.matching(filter, nil), filter), nil
}

func (m *mockEventStore) Count(_ context.Context, filter event.ListFilter) (int, error) {
	return len(m.matching(filter, nil)), nil
}

func (m *mockEventStore) ListRegistered(_ context.Context, accountID, _ string, filter event.ListFilter) ([]domainEvent.Summary, error) {
	m.lastFilter = filter
	ids := make(map[string]bool)
	for _, id := range m.registered[accountID] {
		ids[id] = true
	}
	return page(m.matching(filter, ids), filter), nil
}

func (m *mockEventStore) EventIDsForAccount(_ context.Context, accountID string, eventIDs []string) (map[string]bool, error) {
	mine := make(map[string]bool)
	for _, id := range m.registered[accountID] {
		mine[id] = true
	}
	out := make(map[string]bool)
	for _, id := range eventIDs {
		if mine[id] {
			out[id] = true
		}
	}
	return out, nil
}

type mockRegistrantStore struct {
	byEvent map[string][]registration.Registrant
}

func (m *mockRegistrantStore) ListByEvent(_ context.Context, eventID string) ([]registration.Registrant, error) {
	return m.byEvent[eventID], nil
}
