package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carecal/internal/domain/account"
	"carecal/internal/domain/event"
	"carecal/internal/domain/registration"
)

var (
	ErrRoleMismatch = errors.New("account cannot register in that role")
	ErrEventEnded   = errors.New("event has already ended")
)

// RegistrationStoreForRegister defines the store interface needed by Register and Unregister.
type RegistrationStoreForRegister interface {
	RegisterWithinCapacity(ctx context.Context, reg registration.Registration) error
	Unregister(ctx context.Context, eventID, accountID, role string) error
}

// EventLookup loads an event with its counts.
type EventLookup interface {
	GetByID(ctx context.Context, id string) (event.Summary, error)
}

// AccountLookup loads an account by ID.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// RegisterInput carries input for the orchestrator.
type RegisterInput struct {
	Actor     Actor
	EventID   string
	AccountID string
	Role      string // registration.RoleParticipant or registration.RoleVolunteer
}

// RegisterDeps holds dependencies for Register and Unregister.
type RegisterDeps struct {
	RegistrationStore RegistrationStoreForRegister
	EventStore        EventLookup
	AccountStore      AccountLookup
	GenerateID        func() string
	Now               func() time.Time
}

// ExecuteRegister signs an account up for an event.
// PRE: Actor is the account itself or staff; the account's role matches Role
// POST: registration saved, or ErrEventFull / ErrAlreadyRegistered / ErrEventEnded
// INVARIANT: the per-role cap is checked and the row inserted atomically by the store
func ExecuteRegister(ctx context.Context, input RegisterInput, deps RegisterDeps) (registration.Registration, error) {
	reg := registration.Registration{
		EventID:   input.EventID,
		AccountID: input.AccountID,
		Role:      input.Role,
	}
	if err := reg.Validate(); err != nil {
		return registration.Registration{}, err
	}
	if !input.Actor.CanActFor(input.AccountID) {
		return registration.Registration{}, ErrForbidden
	}

	acct, err := deps.AccountStore.GetByID(ctx, input.AccountID)
	if err != nil {
		return registration.Registration{}, err
	}
	if acct.Role != input.Role {
		return registration.Registration{}, ErrRoleMismatch
	}

	now := deps.Now()
	ev, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return registration.Registration{}, err
	}
	if !ev.IsUpcoming(now) {
		return registration.Registration{}, ErrEventEnded
	}

	reg.ID = deps.GenerateID()
	reg.CreatedAt = now
	if err := deps.RegistrationStore.RegisterWithinCapacity(ctx, reg); err != nil {
		slog.Info("registration_event", "event", "register_rejected", "event_id", reg.EventID,
			"account_id", reg.AccountID, "role", reg.Role, "reason", err.Error())
		return registration.Registration{}, err
	}

	slog.Info("registration_event", "event", "registered", "event_id", reg.EventID,
		"account_id", reg.AccountID, "role", reg.Role, "by", input.Actor.AccountID)
	return reg, nil
}

// ExecuteUnregister removes an account's registration for an event.
// PRE: Actor is the account itself or staff
// POST: registration removed or ErrNotRegistered
func ExecuteUnregister(ctx context.Context, input RegisterInput, deps RegisterDeps) error {
	if input.Role != registration.RoleParticipant && input.Role != registration.RoleVolunteer {
		return registration.ErrInvalidRole
	}
	if !input.Actor.CanActFor(input.AccountID) {
		return ErrForbidden
	}

	if err := deps.RegistrationStore.Unregister(ctx, input.EventID, input.AccountID, input.Role); err != nil {
		return err
	}

	slog.Info("registration_event", "event", "unregistered", "event_id", input.EventID,
		"account_id", input.AccountID, "role", input.Role, "by", input.Actor.AccountID)
	return nil
}
