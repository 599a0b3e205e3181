package event

import (
	"context"
	"time"

	domain "carecal/internal/domain/event"
)

// When filters events relative to a reference instant.
const (
	WhenAll      = "all"
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
)

// Store persists Event state. Reads return summaries carrying registration counts.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Summary, error)
	Save(ctx context.Context, value domain.Event) error
	SaveAll(ctx context.Context, values []domain.Event) error
	Update(ctx context.Context, value domain.Event) error
	Delete(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string, from time.Time) (int, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Summary, error)
	ListBySeries(ctx context.Context, seriesID string) ([]domain.Event, error)
	ListRegistered(ctx context.Context, accountID, role string, filter ListFilter) ([]domain.Summary, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Summary, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter carries filtering parameters for List operations.
// Now anchors WhenUpcoming and WhenPast; an event is upcoming until it ends.
type ListFilter struct {
	Search string
	When   string
	Now    time.Time
	Limit  int
	Offset int
}
