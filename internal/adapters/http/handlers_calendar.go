package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"carecal/internal/adapters/http/middleware"
	"carecal/internal/application/projections"
	"carecal/internal/domain/calendar"
)

// calendarRequest is the parsed ?view=&date= pair.
type calendarRequest struct {
	Mode calendar.ViewMode
	Ref  calendar.Date
}

// parseCalendarRequest reads the view (default week) and reference date (default today in the display zone).
func parseCalendarRequest(r *http.Request) (calendarRequest, error) {
	q := r.URL.Query()
	req := calendarRequest{Mode: calendar.ViewWeek, Ref: calendar.DateOf(timeNow(), settings.Location)}
	if v := q.Get("view"); v != "" {
		mode, err := calendar.ParseViewMode(v)
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}
	if v := q.Get("date"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			return req, err
		}
		req.Ref = d
	}
	return req, nil
}

func loadGrid(ctx context.Context, req calendarRequest, sess middleware.Session) (calendar.Grid, error) {
	return projections.QueryGetCalendar(ctx, projections.GetCalendarQuery{
		// Noon keeps the reference inside the intended day whatever the zone offset.
		Reference: req.Ref.In(settings.Location).Add(12 * time.Hour),
		Mode:      req.Mode,
		AccountID: sess.AccountID,
		Role:      sess.Role,
	}, projections.GetCalendarDeps{
		EventStore:        stores.EventStore,
		RegistrationStore: stores.RegistrationStore,
		Location:          settings.Location,
		Slots:             settings.Slots,
		Now:               timeNow,
	})
}

// adjacentPeriods returns reference dates for the previous and next page of the calendar.
func adjacentPeriods(req calendarRequest) (prev, next calendar.Date) {
	if req.Mode == calendar.ViewMonth {
		first := time.Date(req.Ref.Year, req.Ref.Month, 1, 12, 0, 0, 0, time.UTC)
		return calendar.DateOf(first.AddDate(0, -1, 0), time.UTC), calendar.DateOf(first.AddDate(0, 1, 0), time.UTC)
	}
	return req.Ref.AddDays(-7), req.Ref.AddDays(7)
}

// handleCalendarAPI handles GET /api/calendar?view=week|month&date=YYYY-MM-DD.
func handleCalendarAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := parseCalendarRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	grid, err := loadGrid(r.Context(), req, sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// handleCalendarPage handles GET /calendar, the HTML rendering of the same grid.
func handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := parseCalendarRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess, _ := middleware.GetSessionFromContext(ctx)
	grid, err := loadGrid(ctx, req, sess)
	if err != nil {
		writeError(w, err)
		return
	}
	reminders, err := upcomingReminders(ctx, sess)
	if err != nil {
		internalError(w, err)
		return
	}

	title := req.Ref.In(settings.Location).Format("January 2006")
	if req.Mode == calendar.ViewWeek {
		title = "Week of " + grid.Cells[0].Date.In(settings.Location).Format("2 Jan 2006")
	}
	prev, next := adjacentPeriods(req)
	renderTemplate(w, r, "calendar.html", map[string]any{
		"Title":     title,
		"Grid":      grid,
		"IsWeek":    req.Mode == calendar.ViewWeek,
		"Prev":      prev,
		"Next":      next,
		"Today":     calendar.DateOf(timeNow(), settings.Location),
		"Weekdays":  []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		"Reminders": reminders.Items,
	})
}

func upcomingReminders(ctx context.Context, sess middleware.Session) (projections.GetUpcomingRemindersResult, error) {
	return projections.QueryGetUpcomingReminders(ctx, projections.GetUpcomingRemindersQuery{
		AccountID: sess.AccountID,
		Role:      sess.Role,
	}, projections.GetUpcomingRemindersDeps{
		EventStore: stores.EventStore,
		Location:   settings.Location,
		Now:        timeNow,
	})
}

// handleReminders handles GET /reminders: the caller's next registered events.
func handleReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	res, err := upcomingReminders(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCalendarFeed handles GET /calendar.ics. ?mine=true limits it to the caller's registrations.
func handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var mine bool
	if v := r.URL.Query().Get("mine"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "mine must be true or false", http.StatusBadRequest)
			return
		}
		mine = b
	}
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if mine && !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	feed, err := projections.QueryGetCalendarFeed(r.Context(), projections.GetCalendarFeedQuery{
		AccountID:      sess.AccountID,
		Role:           sess.Role,
		OnlyRegistered: mine,
	}, projections.GetCalendarFeedDeps{
		EventStore: stores.EventStore,
		Now:        timeNow,
		BaseURL:    settings.BaseURL,
		Name:       settings.SiteName,
		Timezone:   settings.Location.String(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="carecal.ics"`)
	w.Write([]byte(feed))
}
