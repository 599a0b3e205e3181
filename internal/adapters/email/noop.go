package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// noopKeep is how many sent messages a NoopSender remembers.
const noopKeep = 50

// NoopSender is a no-op email sender for development and testing.
// It logs sends and keeps the most recent messages in memory instead of delivering.
type NoopSender struct {
	mu   sync.Mutex
	sent []SendRequest
}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the email but does not deliver it.
// PRE: req is a valid SendRequest
// POST: Returns a noop result; req is retained for Sent
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	slog.Info("noop_email_send", "to", req.To, "subject", req.Subject, "kind", req.Tag)
	slog.Debug("noop_email_body", "text", req.Text)
	s.remember(req)
	return SendResult{
		MessageID: fmt.Sprintf("noop-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}

// SendBatch logs the batch but does not deliver.
// PRE: reqs is a slice of SendRequests
// POST: Returns noop results for each request without actual delivery
func (s *NoopSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	results := make([]SendResult, 0, len(reqs))
	for _, req := range reqs {
		res, _ := s.Send(ctx, req)
		results = append(results, res)
	}
	return results, nil
}

// Sent returns the retained messages, oldest first.
// INVARIANT: the returned slice is a copy
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *NoopSender) remember(req SendRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	if len(s.sent) > noopKeep {
		s.sent = s.sent[len(s.sent)-noopKeep:]
	}
}
