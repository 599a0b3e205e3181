package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"carecal/internal/adapters/http/middleware"
	"carecal/internal/application/orchestrators"
	"carecal/internal/domain/account"
	"carecal/internal/domain/calendar"
	"carecal/internal/domain/event"
	"carecal/internal/domain/otp"
	"carecal/internal/domain/outbox"
	"carecal/internal/domain/registration"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

//go:embed templates/*.html
var templateFS embed.FS

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func isHTMLRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode_error", "error", err.Error())
	}
}

// errorStatus maps domain errors to HTTP status codes. Zero means unmapped.
func errorStatus(err error) int {
	var importErr *orchestrators.ImportICSValidationError
	switch {
	case errors.As(err, &importErr):
		return http.StatusBadRequest
	case errors.Is(err, orchestrators.ErrForbidden),
		errors.Is(err, orchestrators.ErrCannotDeleteSelf):
		return http.StatusForbidden
	case errors.Is(err, event.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, registration.ErrNotRegistered),
		errors.Is(err, outbox.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registration.ErrEventFull),
		errors.Is(err, registration.ErrAlreadyRegistered),
		errors.Is(err, orchestrators.ErrEventEnded),
		errors.Is(err, orchestrators.ErrRoleMismatch),
		errors.Is(err, orchestrators.ErrCapacityBelowRegistered),
		errors.Is(err, account.ErrDuplicateEmail),
		errors.Is(err, account.ErrDuplicatePhone),
		errors.Is(err, outbox.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, orchestrators.ErrInvalidCredentials),
		errors.Is(err, otp.ErrNotFound),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrUsed),
		errors.Is(err, otp.ErrWrongCode),
		errors.Is(err, otp.ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, orchestrators.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, event.ErrEmptyTitle),
		errors.Is(err, event.ErrEmptyLocation),
		errors.Is(err, event.ErrMissingStart),
		errors.Is(err, event.ErrEndBeforeStart),
		errors.Is(err, event.ErrInvalidCapacity),
		errors.Is(err, event.ErrTooLong),
		errors.Is(err, orchestrators.ErrInvalidRecurrence),
		errors.Is(err, registration.ErrInvalidRole),
		errors.Is(err, account.ErrInvalidRole),
		errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrEmptyEmail),
		errors.Is(err, account.ErrInvalidPhone),
		errors.Is(err, account.ErrNoContact),
		errors.Is(err, account.ErrEmptyPassword),
		errors.Is(err, account.ErrPasswordTooShort),
		errors.Is(err, account.ErrTooLong),
		errors.Is(err, calendar.ErrInvalidViewMode):
		return http.StatusBadRequest
	}
	return 0
}

// writeError sends mapped domain errors with their message and hides everything else.
func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == 0 {
		internalError(w, err)
		return
	}
	http.Error(w, err.Error(), status)
}

// currentActor returns the caller as the orchestrators see it; anonymous callers have empty fields.
func currentActor(r *http.Request) orchestrators.Actor {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	return orchestrators.Actor{AccountID: sess.AccountID, Role: sess.Role}
}

func requireSession(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		slog.Warn("auth_denied", "path", r.URL.Path, "reason", "no session")
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return middleware.Session{}, false
	}
	return sess, true
}

func requireStaff(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	sess, ok := requireSession(w, r)
	if !ok {
		return sess, false
	}
	if sess.Role != account.RoleStaff {
		slog.Warn("auth_denied", "path", r.URL.Path, "account_id", sess.AccountID, "role", sess.Role, "required", account.RoleStaff)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return middleware.Session{}, false
	}
	return sess, true
}

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data any) {
	sess, _ := middleware.GetSessionFromContext(r.Context())

	funcMap := template.FuncMap{
		"siteName":       func() string { return settings.SiteName },
		"currentRole":    func() string { return sess.Role },
		"currentEmail":   func() string { return sess.Email },
		"isLoggedIn":     func() bool { return sess.Role != "" },
		"isStaff":        func() bool { return sess.Role == account.RoleStaff },
		"csrfToken":      func() string { return csrf.Token(r) },
		"csrfField":      func() template.HTML { return csrf.TemplateField(r) },
		"renderMarkdown": renderMarkdown,
		"mod":            func(a, b int) int { return a % b },
		"timeLabel": func(ev calendar.EventView) string {
			return calendar.TimeRangeLabel(ev.LocalStart, ev.LocalEnd, settings.Location)
		},
		"durationLabel": func(ev calendar.EventView) string {
			return calendar.DurationLabel(ev.LocalStart, ev.LocalEnd)
		},
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		internalError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// handleRoot sends visitors to the calendar.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/calendar", http.StatusSeeOther)
}
