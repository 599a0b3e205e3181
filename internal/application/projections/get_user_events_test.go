package projections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"carecal/internal/adapters/storage/registration"
	"carecal/internal/domain/calendar"
	domainEvent "carecal/internal/domain/event"
	domainRegistration "carecal/internal/domain/registration"
)

func registeredStore(t *testing.T) *mockEventStore {
	t.Helper()
	store := newMockEventStore(
		domainEvent.Summary{Event: domainEvent.Event{ID: "past", Title: "Karaoke", Location: "Hall", Start: testNow.Add(-26 * time.Hour)}},
		domainEvent.Summary{Event: domainEvent.Event{ID: "soon", Title: "Tai Chi", Location: "Void deck", Start: testNow.Add(22 * time.Hour), End: testNow.Add(23*time.Hour + 30*time.Minute)}},
		domainEvent.Summary{Event: domainEvent.Event{ID: "other", Title: "Bingo", Location: "Hall", Start: testNow.Add(5 * time.Hour)}},
	)
	store.registered["p1"] = []string{"past", "soon"}
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("v%d", i)
		store.events = append(store.events, domainEvent.Summary{Event: domainEvent.Event{ID: id, Title: "Escort " + id, Location: "Clinic", Start: testNow.Add(time.Duration(48+i) * time.Hour)}})
		store.registered["vol"] = append(store.registered["vol"], id)
	}
	return store
}

func TestQueryGetUserEvents(t *testing.T) {
	tests := []struct {
		name    string
		query   GetUserEventsQuery
		wantIDs []string
		wantErr error
	}{
		{"all registrations", GetUserEventsQuery{AccountID: "p1", Role: domainRegistration.RoleParticipant}, []string{"past", "soon"}, nil},
		{"upcoming only", GetUserEventsQuery{AccountID: "p1", Role: domainRegistration.RoleParticipant, When: "upcoming"}, []string{"soon"}, nil},
		{"nothing registered", GetUserEventsQuery{AccountID: "p9", Role: domainRegistration.RoleVolunteer}, nil, nil},
		{"bad role", GetUserEventsQuery{AccountID: "p1", Role: "staff"}, nil, domainRegistration.ErrInvalidRole},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := QueryGetUserEvents(context.Background(), tc.query, GetUserEventsDeps{EventStore: registeredStore(t), Location: time.UTC, Now: fixedNow})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if len(res.Events) != len(tc.wantIDs) {
				t.Fatalf("events = %d, want %d", len(res.Events), len(tc.wantIDs))
			}
			for i, ev := range res.Events {
				if ev.ID != tc.wantIDs[i] || !ev.IsUserRegistered || ev.RegistrationGlyph != calendar.GlyphRegistered {
					t.Errorf("event %d = %+v", i, ev.EventRecord)
				}
			}
		})
	}
}

func TestQueryGetEventRegistrations(t *testing.T) {
	store := registeredStore(t)
	roster := &mockRegistrantStore{byEvent: map[string][]registration.Registrant{
		"soon": {
			{Registration: domainRegistration.Registration{ID: "r1", EventID: "soon", AccountID: "p1", Role: domainRegistration.RoleParticipant}, FullName: "Mdm Tan"},
			{Registration: domainRegistration.Registration{ID: "r2", EventID: "soon", AccountID: "v1", Role: domainRegistration.RoleVolunteer}, FullName: "Vera"},
			{Registration: domainRegistration.Registration{ID: "r3", EventID: "soon", AccountID: "p2", Role: domainRegistration.RoleParticipant}, FullName: "Mr Lim"},
		},
	}}
	deps := GetEventRegistrationsDeps{EventStore: store, RegistrationStore: roster, Location: time.UTC}

	res, err := QueryGetEventRegistrations(context.Background(), "soon", deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event.ID != "soon" || len(res.Participants) != 2 || len(res.Volunteers) != 1 || res.Volunteers[0].FullName != "Vera" {
		t.Errorf("result = %+v", res)
	}

	res, err = QueryGetEventRegistrations(context.Background(), "other", deps)
	if err != nil || res.Participants == nil || len(res.Participants) != 0 {
		t.Errorf("empty roster = %+v, %v", res, err)
	}

	if _, err := QueryGetEventRegistrations(context.Background(), "ghost", deps); !errors.Is(err, domainEvent.ErrNotFound) {
		t.Errorf("missing event: error = %v", err)
	}
}

func TestQueryGetUpcomingReminders(t *testing.T) {
	sg := singapore(t)
	store := registeredStore(t)
	deps := GetUpcomingRemindersDeps{EventStore: store, Location: sg, Now: fixedNow}

	res, err := QueryGetUpcomingReminders(context.Background(), GetUpcomingRemindersQuery{AccountID: "p1", Role: "participant"}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v", res.Items)
	}
	item := res.Items[0]
	if item.EventID != "soon" || item.Day != "Tomorrow" || item.Time != "8:00 AM - 9:30 AM" || item.Duration != "1h 30m" {
		t.Errorf("item = %+v", item)
	}

	res, err = QueryGetUpcomingReminders(context.Background(), GetUpcomingRemindersQuery{AccountID: "vol", Role: "volunteer"}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != UpcomingReminderLimit || res.Items[0].EventID != "v0" || store.lastFilter.Limit != UpcomingReminderLimit {
		t.Errorf("volunteer items = %d, first %+v", len(res.Items), res.Items)
	}
	if !strings.HasPrefix(res.Items[0].Day, "Tue") {
		t.Errorf("day label = %q", res.Items[0].Day)
	}

	res, err = QueryGetUpcomingReminders(context.Background(), GetUpcomingRemindersQuery{AccountID: "s1", Role: "staff"}, deps)
	if err != nil || res.Items == nil || len(res.Items) != 0 {
		t.Errorf("staff = %+v, %v", res, err)
	}
}
