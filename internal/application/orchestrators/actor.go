package orchestrators

import (
	"errors"

	"carecal/internal/domain/account"
)

// ErrForbidden is returned when the caller may not act on the target.
var ErrForbidden = errors.New("not permitted")

// Actor identifies the authenticated caller of an orchestrator.
type Actor struct {
	AccountID string
	Role      string
}

// IsStaff reports whether the caller holds the staff role.
func (a Actor) IsStaff() bool {
	return a.Role == account.RoleStaff
}

// CanActFor reports whether the caller may act on behalf of accountID.
// INVARIANT: staff may act for anyone; everyone else only for themselves
func (a Actor) CanActFor(accountID string) bool {
	return a.IsStaff() || (a.AccountID != "" && a.AccountID == accountID)
}
