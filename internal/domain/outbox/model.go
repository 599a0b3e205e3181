package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry statuses. pending and retrying are picked up by the worker; failed
// waits for staff; done and abandoned are final.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ActionTypeEmail is the only action type today; executors are keyed by it.
const ActionTypeEmail = "email"

// Email kinds carried in the payload, used for logging and dedupe keys.
const (
	KindLoginCode = "login_code"
	KindReminder  = "daily_reminder"
)

// DefaultMaxAttempts applies when an entry is created without a limit.
const DefaultMaxAttempts = 5

// maxBackoffShift keeps base<<attempts from overflowing.
const maxBackoffShift = 20

var (
	ErrEmptyActionType = errors.New("action type is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrNoRecipient     = errors.New("email recipient is required")
	ErrInvalidStatus   = errors.New("invalid status transition")
	ErrNotFound        = errors.New("outbox entry not found")
)

// Entry is one queued side effect, replayable from its JSON payload.
type Entry struct {
	ID              string
	ActionType      string
	Payload         string
	Status          string
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	ExternalID      string // provider message ID once delivered
	ErrorMessage    string // last failure, cleared on success
	DedupeKey       string // a second entry with the same key is dropped by the store
}

// EmailPayload is the JSON body of an email action.
type EmailPayload struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// NewEmail builds a pending email entry.
// PRE: payload.To is non-empty
// POST: returns an entry that passes Validate
func NewEmail(id string, payload EmailPayload, dedupeKey string, now time.Time) (Entry, error) {
	if payload.To == "" {
		return Entry{}, ErrNoRecipient
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:          id,
		ActionType:  ActionTypeEmail,
		Payload:     string(body),
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		DedupeKey:   dedupeKey,
	}
	return e, e.Validate()
}

// Validate checks required fields and fills MaxAttempts when unset.
func (e *Entry) Validate() error {
	switch {
	case e.ActionType == "":
		return ErrEmptyActionType
	case e.Payload == "":
		return ErrEmptyPayload
	case e.CreatedAt.IsZero():
		return errors.New("created_at must be set")
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// Terminal reports whether the worker will never pick the entry up again.
func (e *Entry) Terminal() bool {
	switch e.Status {
	case StatusDone, StatusAbandoned, StatusFailed:
		return true
	}
	return false
}

// Attempt starts a delivery try at now.
// POST: Attempts incremented; status retrying until Succeed or Fail settles it
func (e *Entry) Attempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// Succeed records delivery under the provider's message ID.
func (e *Entry) Succeed(externalID string) {
	e.Status = StatusDone
	e.ExternalID = externalID
	e.ErrorMessage = ""
}

// Fail records err. The entry stays retrying until it runs out of attempts.
func (e *Entry) Fail(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}

// Reopen lets staff force one more attempt on an undelivered entry.
// POST: the entry has at least one attempt left; done or abandoned entries are refused
func (e *Entry) Reopen() error {
	if e.Status == StatusDone || e.Status == StatusAbandoned {
		return fmt.Errorf("%w: entry %s is %s", ErrInvalidStatus, e.ID, e.Status)
	}
	if e.Attempts >= e.MaxAttempts {
		e.MaxAttempts = e.Attempts + 1
	}
	return nil
}

// Abandon stops further delivery. A delivered entry cannot be abandoned.
func (e *Entry) Abandon() error {
	if e.Status == StatusDone {
		return fmt.Errorf("%w: entry %s was already delivered", ErrInvalidStatus, e.ID)
	}
	e.Status = StatusAbandoned
	return nil
}

// Backoff is base doubled per attempt so far, capped at limit.
func (e *Entry) Backoff(base, limit time.Duration) time.Duration {
	shift := min(e.Attempts, maxBackoffShift)
	if d := base << shift; d < limit {
		return d
	}
	return limit
}

// DueAt is when the worker may try the entry again. Zero means now.
func (e *Entry) DueAt(base, limit time.Duration) time.Time {
	if e.LastAttemptedAt.IsZero() {
		return time.Time{}
	}
	return e.LastAttemptedAt.Add(e.Backoff(base, limit))
}
