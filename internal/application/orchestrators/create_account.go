package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	accountStore "carecal/internal/adapters/storage/account"
	"carecal/internal/domain/account"

	"github.com/google/uuid"
)

// AccountStoreForCreate defines the store interface needed by CreateAccount.
type AccountStoreForCreate interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	GetByPhone(ctx context.Context, phone string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
	Count(ctx context.Context, filter accountStore.ListFilter) (int, error)
}

// CreateAccountInput carries input for the orchestrator.
type CreateAccountInput struct {
	Email    string
	Phone    string
	FullName string
	Password string // required for staff and volunteers
	Role     string
}

// CreateAccountDeps holds dependencies for CreateAccount.
type CreateAccountDeps struct {
	AccountStore AccountStoreForCreate
	Now          func() time.Time
}

// ExecuteCreateAccount coordinates account creation.
// PRE: Valid role; staff/volunteer have email and password >= 12 chars; participants have a phone or email
// POST: Account created with hashed password when one was given
// INVARIANT: Email and phone are unique across accounts
func ExecuteCreateAccount(ctx context.Context, input CreateAccountInput, deps CreateAccountDeps) (string, error) {
	if input.Role == "" {
		return "", account.ErrInvalidRole
	}

	acct := account.Account{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:     account.NormalizePhone(input.Phone),
		FullName:  strings.TrimSpace(input.FullName),
		Role:      input.Role,
		CreatedAt: deps.Now(),
	}
	if err := acct.Validate(); err != nil {
		return "", err
	}

	if acct.Email != "" {
		if _, err := deps.AccountStore.GetByEmail(ctx, acct.Email); err == nil {
			return "", account.ErrDuplicateEmail
		}
	}
	if acct.Phone != "" {
		if _, err := deps.AccountStore.GetByPhone(ctx, acct.Phone); err == nil {
			return "", account.ErrDuplicatePhone
		}
	}

	if input.Password != "" || acct.Role != account.RoleParticipant {
		if err := acct.SetPassword(input.Password); err != nil {
			return "", err
		}
	}

	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return "", err
	}

	slog.Info("auth_event", "event", "account_created", "account_id", acct.ID, "role", acct.Role)
	return acct.ID, nil
}

// ExecuteSeedStaff creates the first staff account if none exists.
// PRE: Database is initialized
// POST: Staff account created if no staff account exists
func ExecuteSeedStaff(ctx context.Context, deps CreateAccountDeps, email, password string) error {
	count, err := deps.AccountStore.Count(ctx, accountStore.ListFilter{Role: account.RoleStaff})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := ExecuteCreateAccount(ctx, CreateAccountInput{
		Email:    email,
		FullName: "Staff",
		Password: password,
		Role:     account.RoleStaff,
	}, deps); err != nil {
		return err
	}

	slog.Info("auth_event", "event", "staff_seeded", "email", email)
	return nil
}

// ErrCannotDeleteSelf prevents staff from removing their own account.
var ErrCannotDeleteSelf = errors.New("you cannot delete your own account")

// AccountStoreForDelete defines the store interface needed by DeleteAccount.
type AccountStoreForDelete interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	Delete(ctx context.Context, id string) error
}

// DeleteAccountInput carries input for the orchestrator.
type DeleteAccountInput struct {
	Actor     Actor
	AccountID string
}

// DeleteAccountDeps holds dependencies for DeleteAccount.
type DeleteAccountDeps struct {
	AccountStore AccountStoreForDelete
}

// ExecuteDeleteAccount removes an account and, by cascade, its registrations and codes.
// PRE: Actor is staff; AccountID is not the actor's own
// POST: account removed or an error returned
func ExecuteDeleteAccount(ctx context.Context, input DeleteAccountInput, deps DeleteAccountDeps) error {
	if !input.Actor.IsStaff() {
		return ErrForbidden
	}
	if input.AccountID == input.Actor.AccountID {
		return ErrCannotDeleteSelf
	}

	acct, err := deps.AccountStore.GetByID(ctx, input.AccountID)
	if err != nil {
		return err
	}
	if err := deps.AccountStore.Delete(ctx, acct.ID); err != nil {
		return err
	}

	slog.Info("auth_event", "event", "account_deleted", "account_id", acct.ID, "role", acct.Role, "by", input.Actor.AccountID)
	return nil
}
