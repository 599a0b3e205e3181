package web_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	web "carecal/internal/adapters/http"
	"carecal/internal/adapters/http/perf"
	"carecal/internal/adapters/storage"
	accountStore "carecal/internal/adapters/storage/account"
	eventStore "carecal/internal/adapters/storage/event"
	otpStore "carecal/internal/adapters/storage/otp"
	outboxStore "carecal/internal/adapters/storage/outbox"
	registrationStore "carecal/internal/adapters/storage/registration"
	"carecal/internal/application/orchestrators"
)

const (
	browserStaffEmail    = "coordinator@example.org"
	browserStaffPassword = "a long test password"
)

// browserApp holds the running server and Playwright handles.
type browserApp struct {
	BaseURL string
	Browser playwright.Browser
}

// newBrowserApp starts the fully wrapped handler on a free port against a
// temporary database and launches headless Chromium.
func newBrowserApp(t *testing.T) *browserApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "carecal.db")
	db, err := sql.Open("sqlite", dbPath+storage.DSNPragmas)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	collector := perf.NewCollector(1000)
	timed := storage.NewTimedDB(db, collector)
	stores := &web.Stores{
		AccountStore:      accountStore.NewSQLiteStore(timed),
		EventStore:        eventStore.NewSQLiteStore(timed),
		RegistrationStore: registrationStore.NewSQLiteStore(timed),
		OTPStore:          otpStore.NewSQLiteStore(timed),
		OutboxStore:       outboxStore.NewSQLiteStore(timed),
	}
	if _, err := orchestrators.ExecuteCreateAccount(context.Background(), orchestrators.CreateAccountInput{
		Email:    browserStaffEmail,
		FullName: "Casey Coordinator",
		Password: browserStaffPassword,
		Role:     "staff",
	}, orchestrators.CreateAccountDeps{AccountStore: stores.AccountStore, Now: time.Now}); err != nil {
		t.Fatalf("seed staff: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	baseURL := fmt.Sprintf("http://%s", listener.Addr())

	key, err := web.LoadCSRFKey("", false)
	if err != nil {
		t.Fatal(err)
	}
	handler := web.NewMux("", stores, web.Settings{
		BaseURL: baseURL,
		CSRFKey: key,
	}, collector, nil)
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("launch browser: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		db.Close()
	})
	return &browserApp{BaseURL: baseURL, Browser: browser}
}

func (a *browserApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in through the HTML form, which exercises the CSRF token round trip.
func (a *browserApp) login(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("goto login: %v", err)
	}
	if err := page.Locator("input[name=Email]").Fill(browserStaffEmail); err != nil {
		t.Fatalf("fill email: %v", err)
	}
	if err := page.Locator("input[name=Password]").Fill(browserStaffPassword); err != nil {
		t.Fatalf("fill password: %v", err)
	}
	if err := page.Locator("main button[type=submit]").Click(); err != nil {
		t.Fatalf("submit login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/calendar", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not land on the calendar: %v", err)
	}
}

func TestBrowser_StaffCreatesEventAndSeesItOnTheCalendar(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	app := newBrowserApp(t)
	page := app.newPage(t)
	app.login(t, page)

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Hour)
	created, err := page.Evaluate(fmt.Sprintf(`async () => {
		const r = await fetch('/events', {
			method: 'POST',
			headers: {'Content-Type': 'application/json'},
			body: JSON.stringify({title: 'Sing-along', location: 'Lounge', startInstant: '%s'}),
		});
		return {status: r.status, body: await r.json()};
	}`, start.Format(time.RFC3339)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	res := created.(map[string]interface{})
	if status := fmt.Sprint(res["status"]); status != "201" {
		t.Fatalf("create status = %s, body %v", status, res["body"])
	}
	id := res["body"].(map[string]interface{})["ids"].([]interface{})[0].(string)

	if _, err := page.Goto(app.BaseURL + "/calendar?view=month&date=" + start.Format("2006-01-02")); err != nil {
		t.Fatal(err)
	}
	content, err := page.Content()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "Sing-along") {
		t.Error("new event not shown on the month calendar")
	}

	if _, err := page.Goto(app.BaseURL + "/events/" + id); err != nil {
		t.Fatal(err)
	}
	if visible, _ := page.Locator("img[alt^='QR code']").IsVisible(); !visible {
		t.Error("staff should see the event QR code")
	}

	if err := page.Locator("header button[type=submit]").Click(); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := page.WaitForURL(app.BaseURL+"/login", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Errorf("sign out did not return to login: %v", err)
	}
}
