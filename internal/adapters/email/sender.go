package email

import (
	"context"
	"time"
)

// SendRequest is one outgoing message. Empty From and ReplyTo fall back to the
// sender's defaults.
type SendRequest struct {
	To      []string
	From    string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Tag     string // outbox payload kind, forwarded to the provider as a tag
}

// SendResult identifies an accepted message.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email. SendBatch returns results in request order; on error
// the results cover the requests accepted before the failure.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error)
}
