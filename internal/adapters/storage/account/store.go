package account

import (
	"context"

	domain "carecal/internal/domain/account"
)

// Store persists accounts. Lookups that miss wrap domain.ErrNotFound.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	// GetByPhone expects a normalized number.
	GetByPhone(ctx context.Context, phone string) (domain.Account, error)
	// Save upserts by id; a taken email or phone maps to ErrDuplicateEmail or ErrDuplicatePhone.
	Save(ctx context.Context, a domain.Account) error
	// Delete cascades to the account's registrations and login codes.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Account, error)
	// Count ignores the filter's Limit and Offset.
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter narrows List and Count. Zero values match everything.
type ListFilter struct {
	Role   string
	Search string // substring of name, email or phone, case-insensitive
	Limit  int
	Offset int
}
