package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	// Embedded zone data so CARECAL_TIMEZONE resolves on minimal images.
	_ "time/tzdata"

	emailPkg "carecal/internal/adapters/email"
	web "carecal/internal/adapters/http"
	"carecal/internal/adapters/http/perf"
	"carecal/internal/adapters/storage"
	accountStore "carecal/internal/adapters/storage/account"
	eventStore "carecal/internal/adapters/storage/event"
	otpStore "carecal/internal/adapters/storage/otp"
	outboxStorePkg "carecal/internal/adapters/storage/outbox"
	registrationStore "carecal/internal/adapters/storage/registration"
	"carecal/internal/application/orchestrators"
	"carecal/internal/commands"
	"carecal/internal/config"
	"carecal/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "carecal.yaml", "Path to the YAML config file (created with defaults if missing)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.Getenv)
	resolved, err := cfg.Validate()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db := openDB(cfg.DBPath)
	defer db.Close()

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, storage.WithSlowQuery(time.Duration(cfg.SlowQueryMs)*time.Millisecond))

	stores := &web.Stores{
		AccountStore:      accountStore.NewSQLiteStore(timedDB),
		EventStore:        eventStore.NewSQLiteStore(timedDB),
		RegistrationStore: registrationStore.NewSQLiteStore(timedDB),
		OTPStore:          otpStore.NewSQLiteStore(timedDB),
		OutboxStore:       outboxStorePkg.NewSQLiteStore(timedDB),
	}
	accountDeps := orchestrators.CreateAccountDeps{AccountStore: stores.AccountStore, Now: time.Now}

	if flag.Arg(0) == "create-staff" {
		if _, err := commands.CreateStaff(context.Background(), flag.Args()[1:], commands.NewPrompter(os.Stdin, os.Stdout), accountDeps); err != nil {
			log.Fatalf("create-staff: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		log.Fatalf("unknown command %q (want create-staff)", flag.Arg(0))
	}

	// Seed the first staff account when the environment provides one
	if cfg.Secrets.SeedStaffEmail != "" && cfg.Secrets.SeedStaffPassword != "" {
		if err := orchestrators.ExecuteSeedStaff(context.Background(), accountDeps, cfg.Secrets.SeedStaffEmail, cfg.Secrets.SeedStaffPassword); err != nil {
			log.Fatalf("failed to seed staff: %v", err)
		}
	}

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.Secrets.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.Secrets.ResendKey, cfg.Email.From, cfg.Email.ReplyTo)
		log.Println("Email sender configured (Resend)")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			log.Println("WARNING: CARECAL_RESEND_KEY is not set, email delivery is DISABLED in production")
		} else {
			log.Println("Email sender configured (noop, set CARECAL_RESEND_KEY for real delivery)")
		}
	}

	// Start outbox background worker for queued reminders and login codes
	outboxStopCh := make(chan struct{})
	outboxProcessor := orchestrators.NewOutboxProcessor(stores.OutboxStore, map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeEmail: &orchestrators.EmailExecutor{Sender: sender},
	})
	orchestrators.StartBackgroundWorker(outboxProcessor, resolved.OutboxInterval, outboxStopCh)
	defer close(outboxStopCh)

	scheduler, err := startJobs(cfg, resolved, stores, collector)
	if err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	defer scheduler.Stop()

	csrfKey, err := web.LoadCSRFKey(cfg.Secrets.CSRFKey, cfg.IsProduction())
	if err != nil {
		log.Fatalf("csrf: %v", err)
	}

	// Create HTTP handler with middleware (pass collector for timing + admin perf)
	mux := web.NewMux("static", stores, web.Settings{
		Location:      resolved.Location,
		Slots:         resolved.Slots,
		BaseURL:       cfg.BaseURL,
		SeriesLimit:   cfg.SeriesLimit,
		ImportHorizon: time.Duration(cfg.ImportHorizonDays) * 24 * time.Hour,
		LogOTPCodes:   !cfg.IsProduction(),
		CSRFKey:       csrfKey,
		Production:    cfg.IsProduction(),
		SlowRequestMs: cfg.SlowRequestMs,
	}, collector, outboxProcessor)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown_error", "error", err.Error())
		}
	}()

	log.Printf("CareCal %s starting on %s (env=%s, tz=%s, schema=%d)", version, cfg.Listen, cfg.Env, resolved.Location, storage.LatestSchemaVersion())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

// openDB opens the SQLite file with WAL mode, foreign keys and a busy timeout, then migrates it.
func openDB(dbPath string) *sql.DB {
	db, err := sql.Open("sqlite", dbPath+storage.DSNPragmas)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// startJobs schedules the daily reminder digest and the hourly purge of expired codes,
// sessions and settled outbox entries.
// Each run is recorded in the perf collector so /admin/perf shows job health.
func startJobs(cfg *config.Config, resolved config.Resolved, stores *web.Stores, collector *perf.Collector) (*cron.Cron, error) {
	logger := cron.VerbosePrintfLogger(log.New(os.Stderr, "cron: ", log.LstdFlags))
	c := cron.New(
		cron.WithLocation(resolved.Location),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	reminderDeps := orchestrators.QueueRemindersDeps{
		AccountStore: stores.AccountStore,
		EventStore:   stores.EventStore,
		Outbox:       stores.OutboxStore,
		GenerateID:   func() string { return uuid.New().String() },
		Now:          time.Now,
		Location:     resolved.Location,
		BaseURL:      cfg.BaseURL,
	}
	if _, err := c.AddFunc(cfg.ReminderCron, func() {
		start := time.Now()
		_, err := orchestrators.ExecuteQueueReminders(context.Background(), reminderDeps)
		collector.RecordJob("queue_reminders", start, err)
		if err != nil {
			slog.Error("job_error", "job", "queue_reminders", "error", err.Error())
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@hourly", func() {
		start := time.Now()
		_, err := orchestrators.ExecutePurgeExpiredOTP(context.Background(), stores.OTPStore, start)
		collector.RecordJob("purge_expired_otp", start, err)
		if err != nil {
			slog.Error("job_error", "job", "purge_expired_otp", "error", err.Error())
		}

		start = time.Now()
		_, err = orchestrators.ExecutePurgeSettledOutbox(context.Background(), stores.OutboxStore, start)
		collector.RecordJob("purge_outbox", start, err)
		if err != nil {
			slog.Error("job_error", "job", "purge_outbox", "error", err.Error())
		}

		if n := web.PruneSessions(); n > 0 {
			slog.Info("sessions_pruned", "count", n)
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
