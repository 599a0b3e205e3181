package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"carecal/internal/domain/account"
)

// AccountStoreForLogin defines the store interface needed by Login.
type AccountStoreForLogin interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult carries the result of a successful login.
type LoginResult struct {
	AccountID string
	Email     string
	FullName  string
	Role      string
}

// LoginDeps holds dependencies for Login. Now defaults to time.Now.
type LoginDeps struct {
	AccountStore AccountStoreForLogin
	Now          func() time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
)

// saveLoginState persists lockout bookkeeping. A failed write must not change
// the login outcome, so it is only logged.
func saveLoginState(ctx context.Context, store AccountStoreForLogin, acct account.Account) {
	if err := store.Save(ctx, acct); err != nil {
		slog.Error("auth_event", "event", "login_state_not_saved", "account_id", acct.ID, "error", err.Error())
	}
}

// ExecuteLogin validates email/password credentials and returns account info for session creation.
// PRE: Valid email and password provided
// POST: Returns account info on success, records failed login on failure
// INVARIANT: Account must not be locked; accounts without a password cannot log in this way
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}

	acct, err := deps.AccountStore.GetByEmail(ctx, email)
	if err != nil {
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "not_found")
		return LoginResult{}, ErrInvalidCredentials
	}

	switch {
	case acct.PasswordHash == "":
		// Participants created by phone sign in with a one-time code instead.
		slog.Info("auth_event", "event", "login_failed", "account_id", acct.ID, "reason", "no_password")
		return LoginResult{}, ErrInvalidCredentials
	case acct.LockedAt(now):
		slog.Info("auth_event", "event", "login_blocked", "account_id", acct.ID, "reason", "locked")
		return LoginResult{}, ErrAccountLocked
	}

	if err := acct.CheckPassword(input.Password); err != nil {
		locked := acct.RecordFailedLogin(now)
		saveLoginState(ctx, deps.AccountStore, acct)
		slog.Info("auth_event", "event", "login_failed", "account_id", acct.ID, "reason", "wrong_password", "failed_logins", acct.FailedLogins)
		if locked {
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if acct.FailedLogins > 0 {
		acct.ClearLockout()
		saveLoginState(ctx, deps.AccountStore, acct)
	}

	slog.Info("auth_event", "event", "login_success", "account_id", acct.ID, "role", acct.Role)

	return LoginResult{
		AccountID: acct.ID,
		Email:     acct.Email,
		FullName:  acct.FullName,
		Role:      acct.Role,
	}, nil
}
