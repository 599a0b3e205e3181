package web

import (
	"net/http"

	"carecal/internal/application/orchestrators"
	"carecal/internal/application/projections"
	"carecal/internal/domain/registration"
)

func registerDeps() orchestrators.RegisterDeps {
	return orchestrators.RegisterDeps{
		RegistrationStore: stores.RegistrationStore,
		EventStore:        stores.EventStore,
		AccountStore:      stores.AccountStore,
		GenerateID:        generateID,
		Now:               timeNow,
	}
}

// handleUserEvents returns the handler for GET /participants/{id}/events or /volunteers/{id}/events.
// ?when=upcoming|past narrows the list.
func handleUserEvents(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := requireSession(w, r); !ok {
			return
		}
		accountID := r.PathValue("id")
		if !currentActor(r).CanActFor(accountID) {
			writeError(w, orchestrators.ErrForbidden)
			return
		}

		res, err := projections.QueryGetUserEvents(r.Context(), projections.GetUserEventsQuery{
			AccountID: accountID,
			Role:      role,
			When:      r.URL.Query().Get("when"),
		}, projections.GetUserEventsDeps{
			EventStore: stores.EventStore,
			Location:   settings.Location,
			Now:        timeNow,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleRegister returns the handler for POST /participant-events or /volunteer-events.
// JSON bodies name the account ({participantId|volunteerId, eventId}); form posts
// from the event page register the signed-in account and redirect back.
func handleRegister(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		sess, ok := requireSession(w, r)
		if !ok {
			return
		}

		var accountID, eventID string
		asJSON := isJSONRequest(r)
		if asJSON {
			var body struct {
				ParticipantID string `json:"participantId"`
				VolunteerID   string `json:"volunteerId"`
				EventID       string `json:"eventId"`
			}
			if err := strictDecode(r, &body); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
			accountID, eventID = body.ParticipantID, body.EventID
			if role == registration.RoleVolunteer {
				accountID = body.VolunteerID
			}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "Invalid form submission", http.StatusBadRequest)
				return
			}
			accountID, eventID = sess.AccountID, r.FormValue("eventId")
		}
		if accountID == "" || eventID == "" {
			http.Error(w, "account and event are required", http.StatusBadRequest)
			return
		}

		reg, err := orchestrators.ExecuteRegister(r.Context(), orchestrators.RegisterInput{
			Actor:     currentActor(r),
			EventID:   eventID,
			AccountID: accountID,
			Role:      role,
		}, registerDeps())
		if err != nil {
			writeError(w, err)
			return
		}
		if !asJSON {
			http.Redirect(w, r, "/events/"+eventID, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":        reg.ID,
			"eventId":   reg.EventID,
			"accountId": reg.AccountID,
			"role":      reg.Role,
			"createdAt": reg.CreatedAt,
		})
	}
}

// handleUnregister returns the handler for DELETE /participant-events/{accountID}/{eventID}
// and the volunteer equivalent.
func handleUnregister(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := requireSession(w, r); !ok {
			return
		}

		err := orchestrators.ExecuteUnregister(r.Context(), orchestrators.RegisterInput{
			Actor:     currentActor(r),
			EventID:   r.PathValue("eventID"),
			AccountID: r.PathValue("accountID"),
			Role:      role,
		}, registerDeps())
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
