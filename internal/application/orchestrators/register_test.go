package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"carecal/internal/domain/account"
	"carecal/internal/domain/event"
	"carecal/internal/domain/registration"
)

func registerFixture() (RegisterDeps, *mockRegistrationStore) {
	regs := newMockRegistrationStore()
	deps := RegisterDeps{
		RegistrationStore: regs,
		EventStore: newMockEventStore(
			event.Summary{Event: event.Event{ID: "soon", Title: "Craft", Location: "Hall", Start: testNow.Add(24 * time.Hour)}},
			event.Summary{Event: event.Event{ID: "done", Title: "Bingo", Location: "Hall", Start: testNow.Add(-3 * time.Hour)}},
		),
		AccountStore: newMockAccountStore(
			account.Account{ID: "p1", Phone: "+6591234567", Role: account.RoleParticipant},
			account.Account{ID: "v1", Email: "vol@carecal.sg", Role: account.RoleVolunteer},
		),
		GenerateID: seqIDs("reg"),
		Now:        fixedNow,
	}
	return deps, regs
}

func TestExecuteRegister(t *testing.T) {
	p1 := Actor{AccountID: "p1", Role: account.RoleParticipant}
	tests := []struct {
		name     string
		input    RegisterInput
		storeErr error
		wantErr  error
	}{
		{"participant signs up", RegisterInput{Actor: p1, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, nil, nil},
		{"volunteer signs up", RegisterInput{Actor: Actor{AccountID: "v1", Role: account.RoleVolunteer}, EventID: "soon", AccountID: "v1", Role: registration.RoleVolunteer}, nil, nil},
		{"staff signs up a participant", RegisterInput{Actor: staffActor, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, nil, nil},
		{"cannot sign up someone else", RegisterInput{Actor: p1, EventID: "soon", AccountID: "v1", Role: registration.RoleVolunteer}, nil, ErrForbidden},
		{"participant cannot volunteer", RegisterInput{Actor: p1, EventID: "soon", AccountID: "p1", Role: registration.RoleVolunteer}, nil, ErrRoleMismatch},
		{"ended event", RegisterInput{Actor: p1, EventID: "done", AccountID: "p1", Role: registration.RoleParticipant}, nil, ErrEventEnded},
		{"missing event", RegisterInput{Actor: p1, EventID: "ghost", AccountID: "p1", Role: registration.RoleParticipant}, nil, event.ErrNotFound},
		{"bad role", RegisterInput{Actor: p1, EventID: "soon", AccountID: "p1", Role: "guest"}, nil, registration.ErrInvalidRole},
		{"full", RegisterInput{Actor: p1, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, registration.ErrEventFull, registration.ErrEventFull},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, regs := registerFixture()
			regs.err = tc.storeErr
			reg, err := ExecuteRegister(context.Background(), tc.input, deps)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr != nil {
				if len(regs.regs) != 0 {
					t.Error("registration stored despite error")
				}
				return
			}
			if reg.ID == "" || !reg.CreatedAt.Equal(testNow) || len(regs.regs) != 1 {
				t.Errorf("registration = %+v, stored %d", reg, len(regs.regs))
			}
		})
	}
}

func TestExecuteRegister_Twice(t *testing.T) {
	deps, _ := registerFixture()
	in := RegisterInput{Actor: Actor{AccountID: "p1", Role: account.RoleParticipant}, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}
	if _, err := ExecuteRegister(context.Background(), in, deps); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := ExecuteRegister(context.Background(), in, deps); !errors.Is(err, registration.ErrAlreadyRegistered) {
		t.Errorf("second: error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestExecuteUnregister(t *testing.T) {
	p1 := Actor{AccountID: "p1", Role: account.RoleParticipant}
	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{"self", RegisterInput{Actor: p1, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, nil},
		{"staff", RegisterInput{Actor: staffActor, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, nil},
		{"someone else", RegisterInput{Actor: Actor{AccountID: "v1", Role: account.RoleVolunteer}, EventID: "soon", AccountID: "p1", Role: registration.RoleParticipant}, ErrForbidden},
		{"not registered", RegisterInput{Actor: p1, EventID: "done", AccountID: "p1", Role: registration.RoleParticipant}, registration.ErrNotRegistered},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, regs := registerFixture()
			regs.regs[regKey("soon", "p1", registration.RoleParticipant)] = registration.Registration{ID: "r1"}
			err := ExecuteUnregister(context.Background(), tc.input, deps)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && len(regs.regs) != 0 {
				t.Error("registration not removed")
			}
		})
	}
}
