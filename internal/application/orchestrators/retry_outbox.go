package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "carecal/internal/adapters/email"
	domain "carecal/internal/domain/outbox"
)

// OutboxStore defines the persistence the outbox processor needs.
type OutboxStore interface {
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	Save(ctx context.Context, e domain.Entry) error
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)
}

// OutboxProcessor delivers queued outbox entries, retrying failures with backoff.
type OutboxProcessor struct {
	store     OutboxStore
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the provider's ID for the action and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// BatchExecutor is an ActionExecutor that can deliver several payloads in one call.
type BatchExecutor interface {
	ActionExecutor
	// ExecuteBatch returns one external ID per payload that succeeded, in order.
	// On error the returned IDs cover the leading payloads that were delivered.
	ExecuteBatch(ctx context.Context, payloads []string) ([]string, error)
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store OutboxStore, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 50,
		now:       time.Now,
	}
}

// ProcessPending delivers every pending entry whose backoff has elapsed.
// PRE: Context is valid
// POST: Ready entries are attempted once; entries of batch-capable types share one call
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("list pending outbox entries: %w", err)
	}

	now := p.now()
	ready := make(map[string][]domain.Entry)
	var order []string
	for _, entry := range entries {
		if now.Before(entry.DueAt(p.baseDelay, p.maxDelay)) {
			continue
		}
		if _, seen := ready[entry.ActionType]; !seen {
			order = append(order, entry.ActionType)
		}
		ready[entry.ActionType] = append(ready[entry.ActionType], entry)
	}

	for _, actionType := range order {
		group := ready[actionType]
		executor, ok := p.executors[actionType]
		if !ok {
			for _, entry := range group {
				entry.Attempt(now)
				entry.Fail(fmt.Errorf("no executor registered for action type: %s", actionType))
				if err := p.store.Save(ctx, entry); err != nil {
					slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", actionType, "error", err.Error())
				}
			}
			continue
		}

		if batcher, ok := executor.(BatchExecutor); ok && len(group) > 1 {
			p.processBatch(ctx, batcher, group)
			continue
		}
		for _, entry := range group {
			if err := p.processEntry(ctx, executor, entry); err != nil {
				slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
			}
		}
	}

	return nil
}

// processEntry attempts a single outbox entry.
func (p *OutboxProcessor) processEntry(ctx context.Context, executor ActionExecutor, entry domain.Entry) error {
	entry.Attempt(p.now())
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.Fail(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err.Error())
	} else {
		entry.Succeed(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}

	return p.store.Save(ctx, entry)
}

func (p *OutboxProcessor) processBatch(ctx context.Context, executor BatchExecutor, group []domain.Entry) {
	payloads := make([]string, len(group))
	now := p.now()
	for i := range group {
		group[i].Attempt(now)
		payloads[i] = group[i].Payload
	}

	ids, err := executor.ExecuteBatch(ctx, payloads)
	for i := range group {
		switch {
		case i < len(ids):
			group[i].Succeed(ids[i])
		case err != nil:
			group[i].Fail(err)
		default:
			group[i].Fail(fmt.Errorf("provider returned %d results for %d messages", len(ids), len(group)))
		}
		if serr := p.store.Save(ctx, group[i]); serr != nil {
			slog.Error("outbox_process_failed", "entry_id", group[i].ID, "error", serr.Error())
		}
	}

	if err != nil {
		slog.Warn("outbox_batch_failed", "action_type", group[0].ActionType, "size", len(group), "delivered", len(ids), "error", err.Error())
		return
	}
	slog.Info("outbox_batch_succeeded", "action_type", group[0].ActionType, "size", len(group))
}

// ProcessSingle manually processes a single outbox entry (for staff retry).
// PRE: entryID is non-empty
// POST: Entry is processed immediately regardless of backoff, status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}

	if err := entry.Reopen(); err != nil {
		return err
	}

	executor, ok := p.executors[entry.ActionType]
	if !ok {
		return fmt.Errorf("no executor registered for action type: %s", entry.ActionType)
	}

	return p.processEntry(ctx, executor, entry)
}

// AbandonEntry stops delivery of an entry at staff request.
// POST: the entry is abandoned; delivered entries are refused with ErrInvalidStatus
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}

	if err := entry.Abandon(); err != nil {
		return err
	}
	slog.Info("outbox_abandoned", "entry_id", entry.ID, "attempts", entry.Attempts)
	return p.store.Save(ctx, entry)
}

// OutboxRetention is how long delivered and abandoned entries stay listed.
const OutboxRetention = 30 * 24 * time.Hour

// OutboxPurger deletes settled entries.
type OutboxPurger interface {
	PurgeSettled(ctx context.Context, cutoff time.Time) (int, error)
}

// ExecutePurgeSettledOutbox drops done and abandoned entries older than OutboxRetention.
// POST: pending, retrying and failed entries are untouched
func ExecutePurgeSettledOutbox(ctx context.Context, store OutboxPurger, now time.Time) (int, error) {
	n, err := store.PurgeSettled(ctx, now.Add(-OutboxRetention))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	if n > 0 {
		slog.Info("outbox_purged", "count", n)
	}
	return n, nil
}

// --- Email Executor ---

// EmailExecutor delivers email payloads through the configured sender.
type EmailExecutor struct {
	Sender emailAdapter.Sender
}

func (e *EmailExecutor) request(payload string) (emailAdapter.SendRequest, error) {
	var p domain.EmailPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return emailAdapter.SendRequest{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return emailAdapter.SendRequest{
		To:      []string{p.To},
		Subject: p.Subject,
		Text:    p.Text,
		HTML:    p.HTML,
		Tag:     p.Kind,
	}, nil
}

// Execute sends an email from the payload.
// PRE: payload is valid JSON matching outbox.EmailPayload
// POST: email accepted by the sender; returns the provider message ID
// INVARIANT: outbox entry status managed by caller
func (e *EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	req, err := e.request(payload)
	if err != nil {
		return "", err
	}
	res, err := e.Sender.Send(ctx, req)
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// ExecuteBatch sends several emails in one provider call.
// PRE: every payload is valid JSON matching outbox.EmailPayload
// POST: returns message IDs in payload order
func (e *EmailExecutor) ExecuteBatch(ctx context.Context, payloads []string) ([]string, error) {
	reqs := make([]emailAdapter.SendRequest, 0, len(payloads))
	for _, payload := range payloads {
		req, err := e.request(payload)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	results, err := e.Sender.SendBatch(ctx, reqs)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.MessageID
	}
	return ids, err
}

// --- Background Worker ---

// StartBackgroundWorker starts a background goroutine that periodically processes pending outbox entries.
// PRE: stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed
func StartBackgroundWorker(processor *OutboxProcessor, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := processor.ProcessPending(ctx); err != nil {
					slog.Error("outbox_background_process_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
}
