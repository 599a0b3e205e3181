package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"carecal/internal/domain/event"
)

// ImportDefaultLocation is used for VEVENTs without a LOCATION.
const ImportDefaultLocation = "To be announced"

// DefaultImportHorizon bounds RRULE expansion when deps leave it unset.
const DefaultImportHorizon = 180 * 24 * time.Hour

// ImportICSValidationError reports a calendar that could not be read at all.
type ImportICSValidationError struct {
	Message string
}

func (e *ImportICSValidationError) Error() string { return e.Message }

// ImportICSRowError describes why one VEVENT was not imported.
type ImportICSRowError struct {
	UID     string
	Summary string
	Message string
}

// ImportICSResult holds aggregate counts from an import run.
type ImportICSResult struct {
	Total     int // VEVENTs in the file
	Created   int // events written (or that would be, on a dry run)
	Duplicate int // occurrences already present with the same title and start
	Skipped   int // VEVENTs ignored entirely
	Errors    []ImportICSRowError
	DryRun    bool
}

// EventStoreForImport defines the store interface needed by ImportICS.
type EventStoreForImport interface {
	SaveAll(ctx context.Context, events []event.Event) error
	ListBetween(ctx context.Context, from, to time.Time) ([]event.Summary, error)
}

// ImportICSInput carries the uploaded calendar.
type ImportICSInput struct {
	Actor  Actor
	Reader io.Reader
	DryRun bool
}

// ImportICSDeps holds dependencies for ImportICS.
type ImportICSDeps struct {
	EventStore  EventStoreForImport
	GenerateID  func() string
	Now         func() time.Time
	Location    *time.Location
	Horizon     time.Duration
	SeriesLimit int
}

// ExecuteImportICS reads VEVENTs from an iCalendar stream and creates events.
// PRE: Actor is staff; Reader holds a VCALENDAR
// POST: single events are created as-is; recurring ones are expanded from now until now+Horizon
// INVARIANT: re-importing the same file creates nothing new; no writes when DryRun;
// the events are written in one batch, so a failed save writes none of them
func ExecuteImportICS(ctx context.Context, input ImportICSInput, deps ImportICSDeps) (ImportICSResult, error) {
	if !input.Actor.IsStaff() {
		return ImportICSResult{}, ErrForbidden
	}

	cal, err := ical.ParseCalendar(input.Reader)
	if err != nil {
		return ImportICSResult{}, &ImportICSValidationError{Message: "could not read calendar: " + err.Error()}
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	horizon := deps.Horizon
	if horizon <= 0 {
		horizon = DefaultImportHorizon
	}
	limit := deps.SeriesLimit
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	now := deps.Now()

	result := ImportICSResult{DryRun: input.DryRun}
	var pending []event.Event
	seen := make(map[string]bool)
	for _, ve := range cal.Events() {
		result.Total++
		parsed, err := parseVEvent(ve, loc)
		if err != nil {
			result.Errors = append(result.Errors, ImportICSRowError{UID: parsed.UID, Summary: parsed.Title, Message: err.Error()})
			continue
		}
		if parsed.IsOverride {
			result.Skipped++
			continue
		}

		starts := []time.Time{parsed.Start}
		seriesID := ""
		if parsed.RRule != "" {
			var truncated bool
			starts, truncated, err = recurrence{
				Rule:    parsed.RRule,
				Start:   parsed.Start,
				ExDates: parsed.ExDates,
				From:    now,
				To:      now.Add(horizon),
				Limit:   limit,
			}.expand()
			if err != nil {
				result.Errors = append(result.Errors, ImportICSRowError{UID: parsed.UID, Summary: parsed.Title, Message: err.Error()})
				continue
			}
			if len(starts) == 0 {
				result.Skipped++
				continue
			}
			if truncated {
				slog.Warn("import_event", "event", "series_truncated", "uid", parsed.UID, "limit", limit)
			}
			seriesID = deps.GenerateID()
		}

		var batch []event.Event
		for _, start := range starts {
			e := event.Event{
				Title:       parsed.Title,
				Description: parsed.Description,
				Location:    parsed.Location,
				Start:       start.UTC(),
				SeriesID:    seriesID,
				CreatedBy:   input.Actor.AccountID,
				CreatedAt:   now,
			}
			if parsed.Duration > 0 {
				e.End = e.Start.Add(parsed.Duration)
			}
			if err := e.Validate(); err != nil {
				result.Errors = append(result.Errors, ImportICSRowError{UID: parsed.UID, Summary: parsed.Title, Message: err.Error()})
				batch = nil
				break
			}

			dup := seen[importKey(e.Title, e.Start)]
			if !dup {
				dup, err = hasEventAt(ctx, deps.EventStore, e.Title, e.Start)
				if err != nil {
					return result, err
				}
			}
			if dup {
				result.Duplicate++
				continue
			}
			e.ID = deps.GenerateID()
			batch = append(batch, e)
		}
		for _, e := range batch {
			seen[importKey(e.Title, e.Start)] = true
		}
		pending = append(pending, batch...)
		result.Created += len(batch)
	}

	if !input.DryRun {
		if err := deps.EventStore.SaveAll(ctx, pending); err != nil {
			return ImportICSResult{DryRun: input.DryRun}, fmt.Errorf("save imported events: %w", err)
		}
	}

	slog.Info("import_event", "event", "ics_imported", "total", result.Total, "created", result.Created,
		"duplicate", result.Duplicate, "skipped", result.Skipped, "errors", len(result.Errors),
		"dry_run", input.DryRun, "by", input.Actor.AccountID)
	return result, nil
}

// importKey matches hasEventAt: same title ignoring case, same start instant.
func importKey(title string, start time.Time) string {
	return strings.ToLower(title) + "|" + start.UTC().Format(time.RFC3339Nano)
}

func hasEventAt(ctx context.Context, store EventStoreForImport, title string, start time.Time) (bool, error) {
	existing, err := store.ListBetween(ctx, start, start.Add(time.Second))
	if err != nil {
		return false, err
	}
	for _, s := range existing {
		if strings.EqualFold(s.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

// importedEvent is a VEVENT reduced to the fields an event needs.
type importedEvent struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	Duration    time.Duration
	RRule       string
	ExDates     []time.Time
	IsOverride  bool
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (importedEvent, error) {
	var out importedEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = strings.TrimSpace(p.Value)
	}
	out.Location = ImportDefaultLocation
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Location = strings.TrimSpace(p.Value)
	}
	if out.Title == "" {
		return out, errors.New("missing SUMMARY")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, endErr := ve.GetEndAt()

	// Floating and all-day times belong to the display location, not UTC.
	_, hasTZ := dtStart.ICalParameters[string(ical.ParameterTzid)]
	floating := !hasTZ && !strings.HasSuffix(dtStart.Value, "Z")
	if floating {
		start = reinterpretIn(start, loc)
		if endErr == nil {
			end = reinterpretIn(end, loc)
		}
	}
	out.Start = start
	if endErr == nil && end.After(start) && strings.Contains(dtStart.Value, "T") {
		out.Duration = end.Sub(start)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		out.IsOverride = true
	}
	return out, nil
}

// reinterpretIn keeps the wall-clock fields of t and moves them into loc.
func reinterpretIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// parseICSTime parses the basic DATE and DATE-TIME forms used in EXDATE.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
