package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Code policy.
const (
	CodeLength  = 6
	TTL         = 10 * time.Minute
	MaxAttempts = 5
)

// Domain errors.
var (
	ErrNotFound        = errors.New("no pending code for this phone")
	ErrExpired         = errors.New("code has expired")
	ErrUsed            = errors.New("code has already been used")
	ErrTooManyAttempts = errors.New("too many attempts; request a new code")
	ErrWrongCode       = errors.New("incorrect code")
)

// Challenge is a pending one-time code issued to an account's phone.
// INVARIANT: CodeHash is a bcrypt hash; the plaintext code is never stored.
type Challenge struct {
	ID        string
	AccountID string
	Phone     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	Used      bool
	CreatedAt time.Time
}

// NewChallenge generates a fresh numeric code and the challenge that verifies it.
// PRE: accountID and phone are non-empty
// POST: returns the plaintext code once; the challenge holds only its hash
func NewChallenge(id, accountID, phone string, now time.Time) (Challenge, string, error) {
	code, err := generateCode()
	if err != nil {
		return Challenge{}, "", fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Challenge{}, "", fmt.Errorf("hash code: %w", err)
	}
	return Challenge{
		ID:        id,
		AccountID: accountID,
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(TTL),
		CreatedAt: now,
	}, code, nil
}

// Verify checks code against the challenge and consumes it on success.
// PRE: none
// POST: Attempts incremented on every call that reaches comparison; Used set on success
func (c *Challenge) Verify(code string, now time.Time) error {
	if c.Used {
		return ErrUsed
	}
	if !now.Before(c.ExpiresAt) {
		return ErrExpired
	}
	if c.Attempts >= MaxAttempts {
		return ErrTooManyAttempts
	}
	c.Attempts++
	if err := bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)); err != nil {
		return ErrWrongCode
	}
	c.Used = true
	return nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
