package outbox

import (
	"context"
	"time"

	domain "carecal/internal/domain/outbox"
)

// Store persists outbox entries.
type Store interface {
	// GetByID returns domain.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Enqueue inserts e unless an entry with the same dedupe key exists.
	// POST: returns false when e was dropped as a duplicate
	Enqueue(ctx context.Context, e domain.Entry) (bool, error)

	// Save upserts e by id.
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns up to limit pending or retrying entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns up to limit entries waiting on staff, latest attempt first.
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// PurgeSettled deletes done and abandoned entries created before cutoff.
	// POST: returns the number of entries removed; pending and failed entries are kept
	PurgeSettled(ctx context.Context, cutoff time.Time) (int, error)
}
