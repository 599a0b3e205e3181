package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	emailAdapter "carecal/internal/adapters/email"
	accountStore "carecal/internal/adapters/storage/account"
	eventStore "carecal/internal/adapters/storage/event"
	"carecal/internal/domain/account"
	"carecal/internal/domain/event"
	"carecal/internal/domain/otp"
	"carecal/internal/domain/outbox"
	"carecal/internal/domain/registration"
)

var testNow = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func intPtr(n int) *int { return &n }

// --- accounts ---

type mockAccountStore struct {
	accounts map[string]account.Account
}

func newMockAccountStore(accts ...account.Account) *mockAccountStore {
	m := &mockAccountStore{accounts: make(map[string]account.Account)}
	for _, a := range accts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockAccountStore) GetByID(_ context.Context, id string) (account.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (m *mockAccountStore) GetByEmail(_ context.Context, email string) (account.Account, error) {
	for _, a := range m.accounts {
		if a.Email != "" && strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (m *mockAccountStore) GetByPhone(_ context.Context, phone string) (account.Account, error) {
	for _, a := range m.accounts {
		if a.Phone != "" && a.Phone == phone {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (m *mockAccountStore) Save(_ context.Context, a account.Account) error {
	m.accounts[a.ID] = a
	return nil
}

func (m *mockAccountStore) Delete(_ context.Context, id string) error {
	if _, ok := m.accounts[id]; !ok {
		return account.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockAccountStore) List(_ context.Context, f accountStore.ListFilter) ([]account.Account, error) {
	var out []account.Account
	for _, a := range m.accounts {
		if f.Role == "" || a.Role == f.Role {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockAccountStore) Count(ctx context.Context, f accountStore.ListFilter) (int, error) {
	f.Limit, f.Offset = 0, 0
	all, err := m.List(ctx, f)
	return len(all), err
}

func withPassword(t *testing.T, a account.Account, password string) account.Account {
	t.Helper()
	if err := a.SetPassword(password); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	return a
}

// --- events ---

type mockEventStore struct {
	events map[string]event.Summary
	// registered maps account ID to the event IDs it is signed up for.
	registered map[string][]string
	// failWrite, when positive, makes that numbered event write fail.
	failWrite int
	writes    int
}

func newMockEventStore(sums ...event.Summary) *mockEventStore {
	m := &mockEventStore{events: make(map[string]event.Summary), registered: make(map[string][]string)}
	for _, s := range sums {
		m.events[s.ID] = s
	}
	return m
}

func (m *mockEventStore) GetByID(_ context.Context, id string) (event.Summary, error) {
	s, ok := m.events[id]
	if !ok {
		return event.Summary{}, event.ErrNotFound
	}
	return s, nil
}

func (m *mockEventStore) write() error {
	m.writes++
	if m.writes == m.failWrite {
		return errors.New("disk full")
	}
	return nil
}

func (m *mockEventStore) Save(_ context.Context, e event.Event) error {
	if err := m.write(); err != nil {
		return err
	}
	s := m.events[e.ID]
	s.Event = e
	m.events[e.ID] = s
	return nil
}

// SaveAll stores nothing unless every write succeeds.
func (m *mockEventStore) SaveAll(_ context.Context, events []event.Event) error {
	for range events {
		if err := m.write(); err != nil {
			return err
		}
	}
	for _, e := range events {
		s := m.events[e.ID]
		s.Event = e
		m.events[e.ID] = s
	}
	return nil
}

func (m *mockEventStore) Update(_ context.Context, e event.Event) error {
	s, ok := m.events[e.ID]
	if !ok {
		return event.ErrNotFound
	}
	if (e.MaxParticipants != nil && *e.MaxParticipants < s.RegisteredParticipants) ||
		(e.MaxVolunteers != nil && *e.MaxVolunteers < s.RegisteredVolunteers) {
		return event.ErrCapacityBelowRegistered
	}
	if err := m.write(); err != nil {
		return err
	}
	s.Event = e
	m.events[e.ID] = s
	return nil
}

func (m *mockEventStore) Delete(_ context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *mockEventStore) DeleteSeries(_ context.Context, seriesID string, from time.Time) (int, error) {
	n := 0
	for id, s := range m.events {
		if s.SeriesID == seriesID && !s.Start.Before(from) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

func (m *mockEventStore) sorted() []event.Summary {
	var out []event.Summary
	for _, s := range m.events {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *mockEventStore) ListBetween(_ context.Context, from, to time.Time) ([]event.Summary, error) {
	var out []event.Summary
	for _, s := range m.sorted() {
		if !s.Start.Before(from) && s.Start.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockEventStore) ListRegistered(_ context.Context, accountID, _ string, f eventStore.ListFilter) ([]event.Summary, error) {
	mine := make(map[string]bool)
	for _, id := range m.registered[accountID] {
		mine[id] = true
	}
	var out []event.Summary
	for _, s := range m.sorted() {
		if !mine[s.ID] {
			continue
		}
		if f.When == eventStore.WhenUpcoming && !s.IsUpcoming(f.Now) {
			continue
		}
		out = append(out, s)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- registrations ---

type mockRegistrationStore struct {
	regs map[string]registration.Registration
	err  error // returned by RegisterWithinCapacity when set
}

func newMockRegistrationStore() *mockRegistrationStore {
	return &mockRegistrationStore{regs: make(map[string]registration.Registration)}
}

func regKey(eventID, accountID, role string) string {
	return eventID + "|" + accountID + "|" + role
}

func (m *mockRegistrationStore) RegisterWithinCapacity(_ context.Context, r registration.Registration) error {
	if m.err != nil {
		return m.err
	}
	key := regKey(r.EventID, r.AccountID, r.Role)
	if _, ok := m.regs[key]; ok {
		return registration.ErrAlreadyRegistered
	}
	m.regs[key] = r
	return nil
}

func (m *mockRegistrationStore) Unregister(_ context.Context, eventID, accountID, role string) error {
	key := regKey(eventID, accountID, role)
	if _, ok := m.regs[key]; !ok {
		return registration.ErrNotRegistered
	}
	delete(m.regs, key)
	return nil
}

// --- otp ---

type mockOTPStore struct {
	challenges []otp.Challenge
	purged     int
}

func (m *mockOTPStore) Save(_ context.Context, c otp.Challenge) error {
	for i := range m.challenges {
		if m.challenges[i].ID == c.ID {
			m.challenges[i] = c
			return nil
		}
	}
	m.challenges = append(m.challenges, c)
	return nil
}

func (m *mockOTPStore) LatestForPhone(_ context.Context, phone string) (otp.Challenge, error) {
	for i := len(m.challenges) - 1; i >= 0; i-- {
		c := m.challenges[i]
		if c.Phone == phone && !c.Used {
			return c, nil
		}
	}
	return otp.Challenge{}, fmt.Errorf("%w: %s", otp.ErrNotFound, phone)
}

func (m *mockOTPStore) CountSince(_ context.Context, phone string, since time.Time) (int, error) {
	n := 0
	for _, c := range m.challenges {
		if c.Phone == phone && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockOTPStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	var keep []otp.Challenge
	n := 0
	for _, c := range m.challenges {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		keep = append(keep, c)
	}
	m.challenges = keep
	m.purged += n
	return n, nil
}

// --- outbox ---

type mockOutboxStore struct {
	mu      sync.Mutex
	entries map[string]outbox.Entry
	order   []string
}

func newMockOutboxStore() *mockOutboxStore {
	return &mockOutboxStore{entries: make(map[string]outbox.Entry)}
}

func (m *mockOutboxStore) Enqueue(_ context.Context, e outbox.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.DedupeKey != "" {
		for _, existing := range m.entries {
			if existing.DedupeKey == e.DedupeKey {
				return false, nil
			}
		}
	}
	m.entries[e.ID] = e
	m.order = append(m.order, e.ID)
	return true, nil
}

func (m *mockOutboxStore) GetByID(_ context.Context, id string) (outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return outbox.Entry{}, fmt.Errorf("outbox entry not found: %s", id)
	}
	return e, nil
}

func (m *mockOutboxStore) Save(_ context.Context, e outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.entries[e.ID] = e
	return nil
}

func (m *mockOutboxStore) ListPending(_ context.Context, limit int) ([]outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if e.Status == outbox.StatusPending || e.Status == outbox.StatusRetrying {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockOutboxStore) PurgeSettled(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	keep := m.order[:0]
	for _, id := range m.order {
		e := m.entries[id]
		if (e.Status == outbox.StatusDone || e.Status == outbox.StatusAbandoned) && e.CreatedAt.Before(cutoff) {
			delete(m.entries, id)
			n++
			continue
		}
		keep = append(keep, id)
	}
	m.order = keep
	return n, nil
}

func (m *mockOutboxStore) all() []outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// --- email ---

type fakeSender struct {
	mu         sync.Mutex
	fail       error
	sends      []emailAdapter.SendRequest
	batchCalls int
}

func (f *fakeSender) Send(_ context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return emailAdapter.SendResult{}, f.fail
	}
	f.sends = append(f.sends, req)
	return emailAdapter.SendResult{MessageID: fmt.Sprintf("msg-%d", len(f.sends)), SentAt: testNow}, nil
}

func (f *fakeSender) SendBatch(ctx context.Context, reqs []emailAdapter.SendRequest) ([]emailAdapter.SendResult, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	var out []emailAdapter.SendResult
	for _, r := range reqs {
		res, err := f.Send(ctx, r)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
