package account

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxEmailLength    = 254
	MaxPhoneLength    = 20
	MaxFullNameLength = 100
	MinPasswordLength = 12

	passwordCost = 12
)

const (
	RoleStaff       = "staff"
	RoleVolunteer   = "volunteer"
	RoleParticipant = "participant"
)

// Lockout policy.
const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

var ValidRoles = []string{RoleStaff, RoleVolunteer, RoleParticipant}

var (
	ErrNotFound         = errors.New("account not found")
	ErrInvalidEmail     = errors.New("email must contain '@'")
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrInvalidPhone     = errors.New("phone must contain only digits, spaces and an optional leading '+'")
	ErrNoContact        = errors.New("participant needs a phone number or an email")
	ErrInvalidRole      = errors.New("role must be one of: staff, volunteer, participant")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrDuplicateEmail   = errors.New("an account with this email already exists")
	ErrDuplicatePhone   = errors.New("an account with this phone already exists")
	ErrTooLong          = errors.New("value too long")
)

// Account is anyone who can sign in. Staff and volunteers use email and
// password; participants may have only a phone and sign in with a code.
type Account struct {
	ID           string
	Email        string
	Phone        string // normalized, see NormalizePhone
	FullName     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	FailedLogins int
	LockedUntil  time.Time
}

// Validate checks role, lengths and contact details. Every role but
// participant needs an email.
func (a *Account) Validate() error {
	if !isValidRole(a.Role) {
		return ErrInvalidRole
	}
	if len(a.FullName) > MaxFullNameLength {
		return fmt.Errorf("%w: full name cannot exceed %d characters", ErrTooLong, MaxFullNameLength)
	}
	if a.Phone != "" {
		if err := validatePhone(a.Phone); err != nil {
			return err
		}
	}
	email := strings.TrimSpace(a.Email)
	if email == "" {
		if a.Role == RoleParticipant {
			if a.Phone == "" {
				return ErrNoContact
			}
			return nil
		}
		return ErrEmptyEmail
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("%w: email cannot exceed %d characters", ErrTooLong, MaxEmailLength)
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// SetPassword stores a bcrypt hash of plaintext.
// PRE: len(plaintext) >= MinPasswordLength
func (a *Account) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword returns ErrWrongPassword on any mismatch, including a missing hash.
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// LockedAt reports whether the lockout is still running at now.
func (a *Account) LockedAt(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// RecordFailedLogin counts a wrong password at now and reports whether the
// account is locked as a result.
// POST: a lapsed lockout restarts the count from zero
func (a *Account) RecordFailedLogin(now time.Time) bool {
	if !a.LockedUntil.IsZero() && !a.LockedAt(now) {
		a.ClearLockout()
	}
	a.FailedLogins++
	if a.FailedLogins >= MaxFailedLogins {
		a.LockedUntil = now.Add(LockoutDuration)
	}
	return a.LockedAt(now)
}

// ClearLockout forgets past failures.
func (a *Account) ClearLockout() {
	a.FailedLogins = 0
	a.LockedUntil = time.Time{}
}

func (a *Account) IsStaff() bool {
	return a.Role == RoleStaff
}

// CanRegister reports whether the account may sign up for events in some role.
func (a *Account) CanRegister() bool {
	return a.Role == RoleParticipant || a.Role == RoleVolunteer
}

// DisplayName returns the full name, falling back to email then phone.
func (a *Account) DisplayName() string {
	switch {
	case a.FullName != "":
		return a.FullName
	case a.Email != "":
		return a.Email
	default:
		return a.Phone
	}
}

// NormalizePhone strips spaces, dashes and brackets, keeping a leading '+'.
// PRE: none
// POST: returns a string of digits with an optional leading '+'
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validatePhone(phone string) error {
	if len(phone) > MaxPhoneLength {
		return errors.New("phone cannot exceed 20 characters")
	}
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 6 {
		return ErrInvalidPhone
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidPhone
		}
	}
	return nil
}

func isValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}
