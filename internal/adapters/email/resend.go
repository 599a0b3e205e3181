package email

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendBatchLimit is the most messages one Resend batch call accepts.
const resendBatchLimit = 100

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client  *resend.Client
	from    string
	replyTo string
	now     func() time.Time
}

// NewResendSender returns a sender using apiKey, with from and replyTo as defaults.
// PRE: from is a verified Resend sender address
func NewResendSender(apiKey, from, replyTo string) *ResendSender {
	return &ResendSender{
		client:  resend.NewClient(apiKey),
		from:    from,
		replyTo: replyTo,
		now:     time.Now,
	}
}

func (s *ResendSender) message(req SendRequest) *resend.SendEmailRequest {
	msg := &resend.SendEmailRequest{
		From:    cmp.Or(req.From, s.from),
		ReplyTo: cmp.Or(req.ReplyTo, s.replyTo),
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		Html:    req.HTML,
	}
	if req.Tag != "" {
		msg.Tags = []resend.Tag{{Name: "kind", Value: req.Tag}}
	}
	return msg
}

// Send delivers one message.
// POST: returns the Resend message id
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.message(req))
	if err != nil {
		slog.Error("email_send_failed", "provider", "resend", "kind", req.Tag, "recipients", len(req.To), "error", err.Error())
		return SendResult{}, fmt.Errorf("resend: %w", err)
	}
	slog.Info("email_sent", "provider", "resend", "kind", req.Tag, "message_id", sent.Id)
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

// SendBatch delivers reqs in calls of at most resendBatchLimit messages.
// POST: results are in request order; a failed call stops the remaining ones
func (s *ResendSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	results := make([]SendResult, 0, len(reqs))
	for start := 0; start < len(reqs); start += resendBatchLimit {
		chunk := reqs[start:min(start+resendBatchLimit, len(reqs))]
		msgs := make([]*resend.SendEmailRequest, len(chunk))
		for i, req := range chunk {
			msgs[i] = s.message(req)
		}

		resp, err := s.client.Batch.SendWithContext(ctx, msgs)
		if err != nil {
			slog.Error("email_batch_failed", "provider", "resend", "size", len(chunk), "delivered", len(results), "error", err.Error())
			return results, fmt.Errorf("resend batch: %w", err)
		}
		at := s.now()
		for _, item := range resp.Data {
			results = append(results, SendResult{MessageID: item.Id, SentAt: at})
		}
	}
	slog.Info("email_batch_sent", "provider", "resend", "count", len(results))
	return results, nil
}
