package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"carecal/internal/adapters/storage/storagetest"
	eventDomain "carecal/internal/domain/event"
	domain "carecal/internal/domain/registration"
)

func setup(t *testing.T, accounts int) (*SQLiteStore, context.Context) {
	t.Helper()
	db := storagetest.Open(t)
	storagetest.Exec(t, db, `INSERT INTO event (id, title, location, start_at, max_participants, max_volunteers, created_at)
		VALUES ('capped', 'Tai Chi', 'Hall', '2026-02-02T01:00:00.000000000Z', 2, 1, '2026-01-01T00:00:00Z'),
		       ('open', 'Bingo', 'Hall', '2026-02-03T01:00:00.000000000Z', NULL, NULL, '2026-01-01T00:00:00Z')`)
	for i := 0; i < accounts; i++ {
		storagetest.Exec(t, db, "INSERT INTO account (id, full_name, phone, role, created_at) VALUES (?, ?, ?, 'participant', '2026-01-01T00:00:00Z')",
			fmt.Sprintf("a%d", i), fmt.Sprintf("Person %d", i), fmt.Sprintf("+65900000%02d", i))
	}
	return NewSQLiteStore(db), context.Background()
}

func reg(id, eventID, accountID, role string) domain.Registration {
	return domain.Registration{ID: id, EventID: eventID, AccountID: accountID, Role: role, CreatedAt: time.Now()}
}

func TestRegisterWithinCapacity(t *testing.T) {
	store, ctx := setup(t, 4)

	steps := []struct {
		name    string
		reg     domain.Registration
		wantErr error
	}{
		{"first participant", reg("r1", "capped", "a0", domain.RoleParticipant), nil},
		{"duplicate", reg("r2", "capped", "a0", domain.RoleParticipant), domain.ErrAlreadyRegistered},
		{"second participant fills", reg("r3", "capped", "a1", domain.RoleParticipant), nil},
		{"third participant rejected", reg("r4", "capped", "a2", domain.RoleParticipant), domain.ErrEventFull},
		{"volunteer axis independent", reg("r5", "capped", "a2", domain.RoleVolunteer), nil},
		{"volunteer axis full", reg("r6", "capped", "a3", domain.RoleVolunteer), domain.ErrEventFull},
		{"duplicate on full event", reg("r7", "capped", "a1", domain.RoleParticipant), domain.ErrAlreadyRegistered},
		{"unlimited event", reg("r8", "open", "a3", domain.RoleParticipant), nil},
		{"missing event", reg("r9", "ghost", "a3", domain.RoleParticipant), eventDomain.ErrNotFound},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			err := store.RegisterWithinCapacity(ctx, st.reg)
			if st.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.wantErr != nil && !errors.Is(err, st.wantErr) {
				t.Fatalf("error = %v, want %v", err, st.wantErr)
			}
		})
	}

	list, err := store.ListByEvent(ctx, "capped")
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	if len(list) != 3 || list[0].Role != domain.RoleParticipant || list[2].Role != domain.RoleVolunteer {
		t.Errorf("ListByEvent = %+v", list)
	}
	if list[0].FullName != "Person 0" || list[0].Phone != "+6590000000" {
		t.Errorf("registrant fields = %+v", list[0])
	}
}

func TestRegisterWithinCapacity_Concurrent(t *testing.T) {
	store, ctx := setup(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.RegisterWithinCapacity(ctx, reg(fmt.Sprintf("r%d", i), "capped", fmt.Sprintf("a%d", i), domain.RoleParticipant))
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if ok != 2 {
		t.Errorf("successful registrations = %d, want exactly the cap of 2", ok)
	}
}

func TestUnregisterAndLookups(t *testing.T) {
	store, ctx := setup(t, 2)
	store.RegisterWithinCapacity(ctx, reg("r1", "capped", "a0", domain.RoleParticipant))
	store.RegisterWithinCapacity(ctx, reg("r2", "open", "a0", domain.RoleParticipant))

	ids, err := store.EventIDsForAccount(ctx, "a0", []string{"capped", "open", "ghost"})
	if err != nil {
		t.Fatalf("EventIDsForAccount: %v", err)
	}
	if !ids["capped"] || !ids["open"] || ids["ghost"] || len(ids) != 2 {
		t.Errorf("EventIDsForAccount = %v", ids)
	}
	if empty, _ := store.EventIDsForAccount(ctx, "a0", nil); len(empty) != 0 {
		t.Errorf("no ids should give empty map, got %v", empty)
	}

	mine, _ := store.ListByAccount(ctx, "a0")
	if len(mine) != 2 {
		t.Errorf("ListByAccount len = %d, want 2", len(mine))
	}

	if err := store.Unregister(ctx, "capped", "a0", domain.RoleParticipant); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := store.Unregister(ctx, "capped", "a0", domain.RoleParticipant); !errors.Is(err, domain.ErrNotRegistered) {
		t.Errorf("second Unregister = %v, want ErrNotRegistered", err)
	}
	// The freed place can be taken again.
	if err := store.RegisterWithinCapacity(ctx, reg("r3", "capped", "a1", domain.RoleParticipant)); err != nil {
		t.Errorf("re-register after unregister: %v", err)
	}
}
