package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	accountStore "carecal/internal/adapters/storage/account"
	eventStore "carecal/internal/adapters/storage/event"
	"carecal/internal/domain/account"
	"carecal/internal/domain/calendar"
	"carecal/internal/domain/event"
	"carecal/internal/domain/outbox"
)

// ReminderEventLimit is how many upcoming events one digest lists.
const ReminderEventLimit = 5

const reminderPageSize = 200

// AccountStoreForReminders defines the account listing needed by QueueReminders.
type AccountStoreForReminders interface {
	List(ctx context.Context, filter accountStore.ListFilter) ([]account.Account, error)
}

// EventStoreForReminders defines the event lookup needed by QueueReminders.
type EventStoreForReminders interface {
	ListRegistered(ctx context.Context, accountID, role string, filter eventStore.ListFilter) ([]event.Summary, error)
}

// QueueRemindersDeps holds dependencies for QueueReminders.
type QueueRemindersDeps struct {
	AccountStore AccountStoreForReminders
	EventStore   EventStoreForReminders
	Outbox       OutboxEnqueuer
	GenerateID   func() string
	Now          func() time.Time
	Location     *time.Location
	BaseURL      string
}

// QueueRemindersResult counts what one run did.
type QueueRemindersResult struct {
	Accounts  int // accounts considered
	Queued    int
	Duplicate int // already queued today
	NoEvents  int
}

// ExecuteQueueReminders enqueues a daily digest of each account's next upcoming events.
// PRE: Location is the display location
// POST: one email entry per account with an email and at least one upcoming registration
// INVARIANT: at most one digest per account per display-calendar day
func ExecuteQueueReminders(ctx context.Context, deps QueueRemindersDeps) (QueueRemindersResult, error) {
	now := deps.Now()
	today := calendar.DateOf(now, deps.Location)
	var result QueueRemindersResult

	for _, role := range []string{account.RoleParticipant, account.RoleVolunteer} {
		for offset := 0; ; offset += reminderPageSize {
			accounts, err := deps.AccountStore.List(ctx, accountStore.ListFilter{Role: role, Limit: reminderPageSize, Offset: offset})
			if err != nil {
				return result, fmt.Errorf("list %s accounts: %w", role, err)
			}
			for _, acct := range accounts {
				if acct.Email == "" {
					continue
				}
				result.Accounts++
				if err := queueReminder(ctx, acct, today, now, deps, &result); err != nil {
					return result, err
				}
			}
			if len(accounts) < reminderPageSize {
				break
			}
		}
	}

	slog.Info("reminder_event", "event", "reminders_queued", "date", today.String(), "accounts", result.Accounts,
		"queued", result.Queued, "duplicate", result.Duplicate, "no_events", result.NoEvents)
	return result, nil
}

func queueReminder(ctx context.Context, acct account.Account, today calendar.Date, now time.Time, deps QueueRemindersDeps, result *QueueRemindersResult) error {
	events, err := deps.EventStore.ListRegistered(ctx, acct.ID, acct.Role, eventStore.ListFilter{
		When:  eventStore.WhenUpcoming,
		Now:   now,
		Limit: ReminderEventLimit,
	})
	if err != nil {
		return fmt.Errorf("list events for %s: %w", acct.ID, err)
	}
	if len(events) == 0 {
		result.NoEvents++
		return nil
	}

	digest := newReminderDigest(acct, events, now, deps.Location, deps.BaseURL)
	html, err := digest.html()
	if err != nil {
		return err
	}
	entry, err := outbox.NewEmail(deps.GenerateID(), outbox.EmailPayload{
		Kind:    outbox.KindReminder,
		To:      acct.Email,
		Subject: digest.subject(),
		Text:    digest.text(),
		HTML:    html,
	}, ReminderDedupeKey(acct.ID, today), now)
	if err != nil {
		return err
	}

	added, err := deps.Outbox.Enqueue(ctx, entry)
	if err != nil {
		return fmt.Errorf("queue reminder for %s: %w", acct.ID, err)
	}
	if added {
		result.Queued++
	} else {
		result.Duplicate++
	}
	return nil
}

// ReminderDedupeKey identifies one account's digest for one display day.
func ReminderDedupeKey(accountID string, day calendar.Date) string {
	return "reminder:" + accountID + ":" + day.String()
}

type reminderLine struct {
	Day   string
	Time  string
	Title string
	Place string
	URL   string
}

type reminderDigest struct {
	Name  string
	Lines []reminderLine
}

func newReminderDigest(acct account.Account, events []event.Summary, now time.Time, loc *time.Location, baseURL string) reminderDigest {
	d := reminderDigest{Name: acct.DisplayName()}
	for _, ev := range events {
		d.Lines = append(d.Lines, reminderLine{
			Day:   calendar.RelativeDayLabel(ev.Start, now, loc),
			Time:  calendar.TimeRangeLabel(ev.Start, ev.EffectiveEnd(), loc),
			Title: ev.Title,
			Place: ev.Location,
			URL:   strings.TrimSuffix(baseURL, "/") + "/calendar?date=" + calendar.DateOf(ev.Start, loc).String(),
		})
	}
	return d
}

func (d reminderDigest) subject() string {
	if len(d.Lines) == 1 {
		return "Reminder: " + d.Lines[0].Title + " " + strings.ToLower(d.Lines[0].Day)
	}
	return fmt.Sprintf("Your next %d activities", len(d.Lines))
}

func (d reminderDigest) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nHere is what you have coming up:\n\n", d.Name)
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "- %s, %s: %s at %s\n", l.Day, l.Time, l.Title, l.Place)
	}
	b.WriteString("\nSee you there!\n")
	return b.String()
}

var reminderHTML = template.Must(template.New("reminder").Parse(`<p>Hi {{.Name}},</p>
<p>Here is what you have coming up:</p>
<ul>
{{- range .Lines}}
<li><strong>{{.Day}}, {{.Time}}</strong>: <a href="{{.URL}}">{{.Title}}</a> at {{.Place}}</li>
{{- end}}
</ul>
<p>See you there!</p>`))

func (d reminderDigest) html() (string, error) {
	var buf bytes.Buffer
	if err := reminderHTML.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}
