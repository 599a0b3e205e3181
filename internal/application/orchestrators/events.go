package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carecal/internal/domain/event"
)

// Series defaults used when deps leave them unset.
const (
	DefaultSeriesLimit   = 104
	DefaultSeriesHorizon = 366 * 24 * time.Hour
)

// Delete scopes.
const (
	DeleteScopeSingle    = "single"
	DeleteScopeFollowing = "following"
)

// ErrCapacityBelowRegistered is returned when a cap would drop below current sign-ups.
var ErrCapacityBelowRegistered = event.ErrCapacityBelowRegistered

// EventFields are the editable parts of an event.
type EventFields struct {
	Title            string
	Description      string
	Notes            string
	Location         string
	Start            time.Time
	End              time.Time
	DisabledFriendly bool
	MaxParticipants  *int
	MaxVolunteers    *int
}

func (f EventFields) apply(e *event.Event) {
	e.Title = strings.TrimSpace(f.Title)
	e.Description = strings.TrimSpace(f.Description)
	e.Notes = strings.TrimSpace(f.Notes)
	e.Location = strings.TrimSpace(f.Location)
	e.Start = f.Start
	e.End = f.End
	e.DisabledFriendly = f.DisabledFriendly
	e.MaxParticipants = f.MaxParticipants
	e.MaxVolunteers = f.MaxVolunteers
}

// --- Create ---

// EventStoreForCreate defines the store interface needed by CreateEvent.
type EventStoreForCreate interface {
	Save(ctx context.Context, e event.Event) error
	SaveAll(ctx context.Context, events []event.Event) error
}

// CreateEventInput carries input for the orchestrator.
type CreateEventInput struct {
	Actor Actor
	EventFields
	// RRule, when set, repeats the event. Occurrences follow wall-clock time in the display location.
	RRule string
}

// CreateEventResult lists what was created.
type CreateEventResult struct {
	IDs       []string
	SeriesID  string
	Truncated bool
}

// CreateEventDeps holds dependencies for CreateEvent.
type CreateEventDeps struct {
	EventStore    EventStoreForCreate
	GenerateID    func() string
	Now           func() time.Time
	Location      *time.Location
	SeriesLimit   int
	SeriesHorizon time.Duration
}

// ExecuteCreateEvent creates one event, or a series when RRule is set.
// PRE: Actor is staff; fields pass event validation
// POST: every occurrence is saved with the same SeriesID, at most SeriesLimit of them;
// a failed save leaves no occurrence behind
func ExecuteCreateEvent(ctx context.Context, input CreateEventInput, deps CreateEventDeps) (CreateEventResult, error) {
	if !input.Actor.IsStaff() {
		return CreateEventResult{}, ErrForbidden
	}

	base := event.Event{CreatedBy: input.Actor.AccountID, CreatedAt: deps.Now()}
	input.EventFields.apply(&base)
	if err := base.Validate(); err != nil {
		return CreateEventResult{}, err
	}

	if strings.TrimSpace(input.RRule) == "" {
		base.ID = deps.GenerateID()
		if err := deps.EventStore.Save(ctx, base); err != nil {
			return CreateEventResult{}, err
		}
		slog.Info("event_event", "event", "event_created", "event_id", base.ID, "by", input.Actor.AccountID)
		return CreateEventResult{IDs: []string{base.ID}}, nil
	}

	limit := deps.SeriesLimit
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	horizon := deps.SeriesHorizon
	if horizon <= 0 {
		horizon = DefaultSeriesHorizon
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	start := base.Start.In(loc)
	starts, truncated, err := recurrence{
		Rule:  input.RRule,
		Start: start,
		From:  start,
		To:    start.Add(horizon),
		Limit: limit,
	}.expand()
	if err != nil {
		return CreateEventResult{}, err
	}
	if len(starts) == 0 {
		return CreateEventResult{}, fmt.Errorf("%w: no occurrences", ErrInvalidRecurrence)
	}

	duration := time.Duration(0)
	if !base.End.IsZero() {
		duration = base.End.Sub(base.Start)
	}

	seriesID := deps.GenerateID()
	occurrences := make([]event.Event, 0, len(starts))
	ids := make([]string, 0, len(starts))
	for _, occ := range starts {
		e := base
		e.ID = deps.GenerateID()
		e.SeriesID = seriesID
		e.Start = occ.UTC()
		if !base.End.IsZero() {
			e.End = e.Start.Add(duration)
		}
		occurrences = append(occurrences, e)
		ids = append(ids, e.ID)
	}
	if err := deps.EventStore.SaveAll(ctx, occurrences); err != nil {
		return CreateEventResult{}, fmt.Errorf("save series: %w", err)
	}

	result := CreateEventResult{IDs: ids, SeriesID: seriesID, Truncated: truncated}

	slog.Info("event_event", "event", "series_created", "series_id", result.SeriesID,
		"occurrences", len(result.IDs), "truncated", truncated, "by", input.Actor.AccountID)
	return result, nil
}

// --- Update ---

// EventStoreForUpdate defines the store interface needed by UpdateEvent.
type EventStoreForUpdate interface {
	GetByID(ctx context.Context, id string) (event.Summary, error)
	Update(ctx context.Context, e event.Event) error
}

// UpdateEventInput carries input for the orchestrator.
type UpdateEventInput struct {
	Actor   Actor
	EventID string
	EventFields
}

// UpdateEventDeps holds dependencies for UpdateEvent.
type UpdateEventDeps struct {
	EventStore EventStoreForUpdate
}

// ExecuteUpdateEvent replaces an event's editable fields.
// PRE: Actor is staff; EventID exists
// POST: event saved; ID, SeriesID, CreatedBy and CreatedAt are preserved
// INVARIANT: caps never drop below the current registration counts; the store
// re-checks the counts within the same write
func ExecuteUpdateEvent(ctx context.Context, input UpdateEventInput, deps UpdateEventDeps) (event.Event, error) {
	if !input.Actor.IsStaff() {
		return event.Event{}, ErrForbidden
	}

	current, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return event.Event{}, err
	}

	updated := current.Event
	input.EventFields.apply(&updated)
	if err := updated.Validate(); err != nil {
		return event.Event{}, err
	}
	if updated.MaxParticipants != nil && *updated.MaxParticipants < current.RegisteredParticipants {
		return event.Event{}, fmt.Errorf("%w: %d participants registered", ErrCapacityBelowRegistered, current.RegisteredParticipants)
	}
	if updated.MaxVolunteers != nil && *updated.MaxVolunteers < current.RegisteredVolunteers {
		return event.Event{}, fmt.Errorf("%w: %d volunteers registered", ErrCapacityBelowRegistered, current.RegisteredVolunteers)
	}

	if err := deps.EventStore.Update(ctx, updated); err != nil {
		if errors.Is(err, ErrCapacityBelowRegistered) {
			slog.Warn("event_event", "event", "event_update_capacity_race", "event_id", updated.ID)
		}
		return event.Event{}, err
	}

	slog.Info("event_event", "event", "event_updated", "event_id", updated.ID, "by", input.Actor.AccountID)
	return updated, nil
}

// --- Delete ---

// EventStoreForDelete defines the store interface needed by DeleteEvent.
type EventStoreForDelete interface {
	GetByID(ctx context.Context, id string) (event.Summary, error)
	Delete(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string, from time.Time) (int, error)
}

// DeleteEventInput carries input for the orchestrator.
type DeleteEventInput struct {
	Actor   Actor
	EventID string
	Scope   string // DeleteScopeSingle (default) or DeleteScopeFollowing
}

// DeleteEventDeps holds dependencies for DeleteEvent.
type DeleteEventDeps struct {
	EventStore EventStoreForDelete
}

// ExecuteDeleteEvent removes an event, or it and every later occurrence of its series.
// PRE: Actor is staff; EventID exists
// POST: returns the number of events removed; registrations go with them
func ExecuteDeleteEvent(ctx context.Context, input DeleteEventInput, deps DeleteEventDeps) (int, error) {
	if !input.Actor.IsStaff() {
		return 0, ErrForbidden
	}

	ev, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return 0, err
	}

	if input.Scope == DeleteScopeFollowing && ev.SeriesID != "" {
		n, err := deps.EventStore.DeleteSeries(ctx, ev.SeriesID, ev.Start)
		if err != nil {
			return 0, err
		}
		slog.Info("event_event", "event", "series_deleted", "series_id", ev.SeriesID, "from", ev.Start, "count", n, "by", input.Actor.AccountID)
		return n, nil
	}

	if err := deps.EventStore.Delete(ctx, ev.ID); err != nil {
		return 0, err
	}
	slog.Info("event_event", "event", "event_deleted", "event_id", ev.ID, "by", input.Actor.AccountID)
	return 1, nil
}
