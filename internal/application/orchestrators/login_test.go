package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"carecal/internal/domain/account"
)

const testPassword = "correct-horse-battery"

func TestExecuteLogin(t *testing.T) {
	staff := withPassword(t, account.Account{ID: "s1", Email: "boss@carecal.sg", Role: account.RoleStaff}, testPassword)
	locked := withPassword(t, account.Account{ID: "s2", Email: "locked@carecal.sg", Role: account.RoleStaff,
		FailedLogins: account.MaxFailedLogins, LockedUntil: time.Now().Add(time.Hour)}, testPassword)
	participant := account.Account{ID: "p1", Email: "ah.ma@example.com", Phone: "+6591234567", Role: account.RoleParticipant}

	tests := []struct {
		name     string
		input    LoginInput
		wantErr  error
		wantRole string
	}{
		{"success", LoginInput{Email: "boss@carecal.sg", Password: testPassword}, nil, account.RoleStaff},
		{"email is case insensitive", LoginInput{Email: "  BOSS@carecal.sg ", Password: testPassword}, nil, account.RoleStaff},
		{"wrong password", LoginInput{Email: "boss@carecal.sg", Password: "nope-nope-nope"}, ErrInvalidCredentials, ""},
		{"unknown email", LoginInput{Email: "who@carecal.sg", Password: testPassword}, ErrInvalidCredentials, ""},
		{"empty fields", LoginInput{}, ErrInvalidCredentials, ""},
		{"locked", LoginInput{Email: "locked@carecal.sg", Password: testPassword}, ErrAccountLocked, ""},
		{"passwordless participant", LoginInput{Email: "ah.ma@example.com", Password: testPassword}, ErrInvalidCredentials, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockAccountStore(staff, locked, participant)
			res, err := ExecuteLogin(context.Background(), tc.input, LoginDeps{AccountStore: store})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if res.Role != tc.wantRole {
				t.Errorf("role = %q, want %q", res.Role, tc.wantRole)
			}
		})
	}
}

func TestExecuteLogin_LocksAfterRepeatedFailures(t *testing.T) {
	staff := withPassword(t, account.Account{ID: "s1", Email: "boss@carecal.sg", Role: account.RoleStaff}, testPassword)
	store := newMockAccountStore(staff)
	now := testNow
	deps := LoginDeps{AccountStore: store, Now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 1; i <= account.MaxFailedLogins; i++ {
		want := ErrInvalidCredentials
		if i == account.MaxFailedLogins {
			want = ErrAccountLocked
		}
		if _, err := ExecuteLogin(ctx, LoginInput{Email: staff.Email, Password: "wrong-password!"}, deps); !errors.Is(err, want) {
			t.Fatalf("attempt %d: error = %v, want %v", i, err, want)
		}
	}
	locked := store.accounts["s1"]
	if !locked.LockedAt(now) {
		t.Fatal("account should be locked after repeated failures")
	}
	if _, err := ExecuteLogin(ctx, LoginInput{Email: staff.Email, Password: testPassword}, deps); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("correct password while locked: error = %v, want ErrAccountLocked", err)
	}

	now = now.Add(account.LockoutDuration)
	if _, err := ExecuteLogin(ctx, LoginInput{Email: staff.Email, Password: testPassword}, deps); err != nil {
		t.Fatalf("login after the lock lapsed: %v", err)
	}
	if got := store.accounts["s1"]; got.FailedLogins != 0 || !got.LockedUntil.IsZero() {
		t.Errorf("lockout not cleared: %+v", got)
	}
}

func TestExecuteLogin_SuccessResetsFailures(t *testing.T) {
	staff := withPassword(t, account.Account{ID: "s1", Email: "boss@carecal.sg", Role: account.RoleStaff, FailedLogins: 3}, testPassword)
	store := newMockAccountStore(staff)

	if _, err := ExecuteLogin(context.Background(), LoginInput{Email: staff.Email, Password: testPassword}, LoginDeps{AccountStore: store}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.accounts["s1"].FailedLogins; got != 0 {
		t.Errorf("FailedLogins = %d, want 0", got)
	}
}
