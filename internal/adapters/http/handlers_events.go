package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"carecal/internal/adapters/http/middleware"
	registrationStore "carecal/internal/adapters/storage/registration"
	"carecal/internal/application/listutil"
	"carecal/internal/application/orchestrators"
	"carecal/internal/application/projections"
	"carecal/internal/domain/calendar"
	"carecal/internal/domain/event"
)

// maxImportBytes bounds an uploaded .ics file.
const maxImportBytes = 2 << 20

// QR code sizes in pixels.
const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// eventRequest is the JSON body of POST /events and PUT /events/{id}.
type eventRequest struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Notes            string     `json:"notes"`
	Location         string     `json:"location"`
	Start            time.Time  `json:"startInstant"`
	End              *time.Time `json:"endInstant"`
	DisabledFriendly bool       `json:"disabledFriendly"`
	MaxParticipants  *int       `json:"maxParticipants"`
	MaxVolunteers    *int       `json:"maxVolunteers"`
}

func (req eventRequest) fields() orchestrators.EventFields {
	f := orchestrators.EventFields{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		Notes:            req.Notes,
		Location:         strings.TrimSpace(req.Location),
		Start:            req.Start,
		DisabledFriendly: req.DisabledFriendly,
		MaxParticipants:  req.MaxParticipants,
		MaxVolunteers:    req.MaxVolunteers,
	}
	if req.End != nil {
		f.End = *req.End
	}
	return f
}

type createEventRequest struct {
	eventRequest
	// RRule repeats the event, e.g. "FREQ=WEEKLY;BYDAY=TU;COUNT=8".
	RRule string `json:"rrule"`
}

// eventView annotates one stored event for the caller.
func eventView(ctx context.Context, s event.Summary, sess middleware.Session) (calendar.EventView, error) {
	role := calendar.ParseRole(sess.Role)
	registered := false
	if sess.AccountID != "" && (role == calendar.RoleParticipant || role == calendar.RoleVolunteer) {
		ids, err := stores.RegistrationStore.EventIDsForAccount(ctx, sess.AccountID, []string{s.ID})
		if err != nil {
			return calendar.EventView{}, err
		}
		registered = ids[s.ID]
	}
	return calendar.Annotate(s.Record(registered), role, settings.Location), nil
}

// handleEvents handles GET (list) and POST (create, staff only) for /events.
func handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		sess, _ := middleware.GetSessionFromContext(ctx)
		res, err := projections.QueryGetEventList(ctx, projections.GetEventListQuery{
			ListParams: listutil.ParseListParams(r.URL.Query(), listutil.WhenUpcoming),
			AccountID:  sess.AccountID,
			Role:       sess.Role,
		}, projections.GetEventListDeps{
			EventStore:        stores.EventStore,
			RegistrationStore: stores.RegistrationStore,
			Location:          settings.Location,
			Now:               timeNow,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case "POST":
		if _, ok := requireStaff(w, r); !ok {
			return
		}
		var req createEventRequest
		if err := strictDecode(r, &req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		result, err := orchestrators.ExecuteCreateEvent(ctx, orchestrators.CreateEventInput{
			Actor:       currentActor(r),
			EventFields: req.fields(),
			RRule:       req.RRule,
		}, orchestrators.CreateEventDeps{
			EventStore:  stores.EventStore,
			GenerateID:  generateID,
			Now:         timeNow,
			Location:    settings.Location,
			SeriesLimit: settings.SeriesLimit,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"ids":       result.IDs,
			"seriesId":  result.SeriesID,
			"truncated": result.Truncated,
		})

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleEvent handles GET, PUT and DELETE for /events/{id}.
// Browsers following a QR code get the HTML page; everyone else gets JSON.
func handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	sess, _ := middleware.GetSessionFromContext(ctx)

	switch r.Method {
	case "GET":
		s, err := stores.EventStore.GetByID(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		view, err := eventView(ctx, s, sess)
		if err != nil {
			internalError(w, err)
			return
		}
		if isHTMLRequest(r) {
			renderTemplate(w, r, "event.html", map[string]any{
				"Event":    view,
				"Day":      calendar.RelativeDayLabel(view.LocalStart, timeNow(), settings.Location),
				"CanJoin":  sess.AccountID != "" && view.RegistrationGlyph == calendar.GlyphUnregistered && s.IsUpcoming(timeNow()),
				"JoinPath": "/" + sess.Role + "-events",
			})
			return
		}
		writeJSON(w, http.StatusOK, view)

	case "PUT":
		if _, ok := requireStaff(w, r); !ok {
			return
		}
		var req eventRequest
		if err := strictDecode(r, &req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if _, err := orchestrators.ExecuteUpdateEvent(ctx, orchestrators.UpdateEventInput{
			Actor:       currentActor(r),
			EventID:     id,
			EventFields: req.fields(),
		}, orchestrators.UpdateEventDeps{EventStore: stores.EventStore}); err != nil {
			writeError(w, err)
			return
		}
		s, err := stores.EventStore.GetByID(ctx, id)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, calendar.Annotate(s.Record(false), calendar.RoleStaff, settings.Location))

	case "DELETE":
		if _, ok := requireStaff(w, r); !ok {
			return
		}
		scope := r.URL.Query().Get("scope")
		if scope != "" && scope != orchestrators.DeleteScopeSingle && scope != orchestrators.DeleteScopeFollowing {
			http.Error(w, "scope must be 'single' or 'following'", http.StatusBadRequest)
			return
		}
		n, err := orchestrators.ExecuteDeleteEvent(ctx, orchestrators.DeleteEventInput{
			Actor:   currentActor(r),
			EventID: id,
			Scope:   scope,
		}, orchestrators.DeleteEventDeps{EventStore: stores.EventStore})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

type importRowJSON struct {
	UID     string `json:"uid,omitempty"`
	Summary string `json:"summary,omitempty"`
	Message string `json:"message"`
}

type importResultJSON struct {
	Total     int             `json:"total"`
	Created   int             `json:"created"`
	Duplicate int             `json:"duplicate"`
	Skipped   int             `json:"skipped"`
	Errors    []importRowJSON `json:"errors"`
	DryRun    bool            `json:"dryRun"`
}

// handleEventImport handles POST /events/import with a text/calendar body.
// ?dry_run=true reports what would be created without writing.
func handleEventImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "dry_run must be true or false", http.StatusBadRequest)
			return
		}
		dryRun = b
	}

	result, err := orchestrators.ExecuteImportICS(r.Context(), orchestrators.ImportICSInput{
		Actor:  currentActor(r),
		Reader: http.MaxBytesReader(w, r.Body, maxImportBytes),
		DryRun: dryRun,
	}, orchestrators.ImportICSDeps{
		EventStore:  stores.EventStore,
		GenerateID:  generateID,
		Now:         timeNow,
		Location:    settings.Location,
		Horizon:     settings.ImportHorizon,
		SeriesLimit: settings.SeriesLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := importResultJSON{
		Total:     result.Total,
		Created:   result.Created,
		Duplicate: result.Duplicate,
		Skipped:   result.Skipped,
		Errors:    make([]importRowJSON, 0, len(result.Errors)),
		DryRun:    result.DryRun,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, importRowJSON{UID: e.UID, Summary: e.Summary, Message: e.Message})
	}
	writeJSON(w, http.StatusOK, resp)
}

type registrantJSON struct {
	RegistrationID string    `json:"registrationId"`
	AccountID      string    `json:"accountId"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	RegisteredAt   time.Time `json:"registeredAt"`
}

func toRegistrantJSON(list []registrationStore.Registrant) []registrantJSON {
	out := make([]registrantJSON, 0, len(list))
	for _, r := range list {
		out = append(out, registrantJSON{
			RegistrationID: r.ID,
			AccountID:      r.AccountID,
			FullName:       r.FullName,
			Email:          r.Email,
			Phone:          r.Phone,
			RegisteredAt:   r.CreatedAt,
		})
	}
	return out
}

// handleEventRegistrations handles GET /events/{id}/registrations (staff only).
func handleEventRegistrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}

	res, err := projections.QueryGetEventRegistrations(r.Context(), r.PathValue("id"), projections.GetEventRegistrationsDeps{
		EventStore:        stores.EventStore,
		RegistrationStore: stores.RegistrationStore,
		Location:          settings.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event":        res.Event,
		"participants": toRegistrantJSON(res.Participants),
		"volunteers":   toRegistrantJSON(res.Volunteers),
	})
}

// handleEventQR handles GET /events/{id}/qr: a PNG linking to the event page.
func handleEventQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if _, err := stores.EventStore.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			http.Error(w, "size must be between 128 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	png, err := qrcode.Encode(eventURL(id), qrcode.Medium, size)
	if err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

func eventURL(id string) string {
	return strings.TrimRight(settings.BaseURL, "/") + "/events/" + id
}
