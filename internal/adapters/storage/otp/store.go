package otp

import (
	"context"
	"time"

	domain "carecal/internal/domain/otp"
)

// Store persists one-time login challenges.
type Store interface {
	Save(ctx context.Context, c domain.Challenge) error
	// LatestForPhone returns the most recent unused challenge for phone.
	// POST: returns an error wrapping domain.ErrNotFound when none exists
	LatestForPhone(ctx context.Context, phone string) (domain.Challenge, error)
	CountSince(ctx context.Context, phone string, since time.Time) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
