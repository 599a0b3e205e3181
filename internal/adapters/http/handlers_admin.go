package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"carecal/internal/domain/outbox"
)

// outboxEntryJSON hides the payload body, which may hold a login code.
type outboxEntryJSON struct {
	ID              string    `json:"id"`
	ActionType      string    `json:"actionType"`
	Kind            string    `json:"kind,omitempty"`
	To              string    `json:"to,omitempty"`
	Status          string    `json:"status"`
	Attempts        int       `json:"attempts"`
	MaxAttempts     int       `json:"maxAttempts"`
	LastAttemptedAt time.Time `json:"lastAttemptedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	Error           string    `json:"error,omitempty"`
}

func toOutboxEntryJSON(e outbox.Entry) outboxEntryJSON {
	out := outboxEntryJSON{
		ID:              e.ID,
		ActionType:      e.ActionType,
		Status:          e.Status,
		Attempts:        e.Attempts,
		MaxAttempts:     e.MaxAttempts,
		LastAttemptedAt: e.LastAttemptedAt,
		CreatedAt:       e.CreatedAt,
		Error:           e.ErrorMessage,
	}
	if e.ActionType == outbox.ActionTypeEmail {
		var p outbox.EmailPayload
		if json.Unmarshal([]byte(e.Payload), &p) == nil {
			out.Kind, out.To = p.Kind, p.To
		}
	}
	return out
}

// handleAdminOutbox handles GET /admin/outbox: failed entries, or ?status=pending for the queue.
func handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var (
		entries []outbox.Entry
		err     error
	)
	switch r.URL.Query().Get("status") {
	case "", outbox.StatusFailed:
		entries, err = stores.OutboxStore.ListFailed(r.Context(), limit)
	case outbox.StatusPending:
		entries, err = stores.OutboxStore.ListPending(r.Context(), limit)
	default:
		http.Error(w, "status must be 'failed' or 'pending'", http.StatusBadRequest)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	out := make([]outboxEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toOutboxEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAdminOutboxAction handles POST /admin/outbox/{id}/{action} where action is retry or abandon.
func handleAdminOutboxAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if outboxProcessor == nil {
		http.Error(w, "outbox processing is disabled", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	switch r.PathValue("action") {
	case "retry":
		if err := outboxProcessor.ProcessSingle(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	case "abandon":
		if err := outboxProcessor.AbandonEntry(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	entry, err := stores.OutboxStore.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboxEntryJSON(entry))
}

// handleAdminPerf handles GET /admin/perf?minutes=N (default 60).
func handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if perfCollector == nil {
		http.Error(w, "performance collection is disabled", http.StatusServiceUnavailable)
		return
	}

	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24*60 {
			minutes = n
		}
	}
	writeJSON(w, http.StatusOK, perfCollector.Snapshot(timeNow().Add(-time.Duration(minutes)*time.Minute), 20))
}
