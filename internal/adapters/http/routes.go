package web

import (
	"net/http"

	"carecal/internal/adapters/http/middleware"
	"carecal/internal/domain/account"
	"carecal/internal/domain/registration"
)

func registerRoutes(mux *http.ServeMux) {
	staffOnly := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireRole(account.RoleStaff)(h)
	}

	mux.HandleFunc("/", handleRoot)

	// Auth
	mux.HandleFunc("/login", handleLogin)
	mux.HandleFunc("/login-otp", handleLoginOTP)
	mux.HandleFunc("/logout", handleLogout)

	// Events
	mux.HandleFunc("/events", handleEvents)
	mux.HandleFunc("/events/import", handleEventImport)
	mux.HandleFunc("/events/{id}", handleEvent)
	mux.HandleFunc("/events/{id}/registrations", handleEventRegistrations)
	mux.HandleFunc("/events/{id}/qr", handleEventQR)

	// Registrations
	mux.HandleFunc("/participants/{id}/events", handleUserEvents(registration.RoleParticipant))
	mux.HandleFunc("/volunteers/{id}/events", handleUserEvents(registration.RoleVolunteer))
	mux.HandleFunc("/participant-events", handleRegister(registration.RoleParticipant))
	mux.HandleFunc("/volunteer-events", handleRegister(registration.RoleVolunteer))
	mux.HandleFunc("/participant-events/{accountID}/{eventID}", handleUnregister(registration.RoleParticipant))
	mux.HandleFunc("/volunteer-events/{accountID}/{eventID}", handleUnregister(registration.RoleVolunteer))

	// Calendar
	mux.HandleFunc("/calendar", handleCalendarPage)
	mux.HandleFunc("/calendar.ics", handleCalendarFeed)
	mux.HandleFunc("/api/calendar", handleCalendarAPI)
	mux.Handle("/reminders", middleware.RequireAuth(http.HandlerFunc(handleReminders)))

	// Accounts
	mux.Handle("/accounts", staffOnly(handleAccounts))
	mux.Handle("/accounts/{id}", staffOnly(handleAccount))

	// Admin
	mux.Handle("/admin/outbox", staffOnly(handleAdminOutbox))
	mux.Handle("/admin/outbox/{id}/{action}", staffOnly(handleAdminOutboxAction))
	mux.Handle("/admin/perf", staffOnly(handleAdminPerf))
}
