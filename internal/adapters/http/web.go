package web

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"carecal/internal/adapters/http/middleware"
	"carecal/internal/adapters/http/perf"
	accountStore "carecal/internal/adapters/storage/account"
	eventStore "carecal/internal/adapters/storage/event"
	otpStore "carecal/internal/adapters/storage/otp"
	outboxStore "carecal/internal/adapters/storage/outbox"
	registrationStore "carecal/internal/adapters/storage/registration"
	"carecal/internal/application/orchestrators"
	"carecal/internal/domain/calendar"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore      accountStore.Store
	EventStore        eventStore.Store
	RegistrationStore registrationStore.Store
	OTPStore          otpStore.Store
	OutboxStore       outboxStore.Store
}

// Settings are the resolved runtime options handlers read.
type Settings struct {
	// Location is the display timezone every calendar is bucketed in.
	Location *time.Location
	// Slots are the week-view rows; empty means calendar.DefaultSlots.
	Slots         []calendar.Slot
	BaseURL       string
	SiteName      string
	SeriesLimit   int
	ImportHorizon time.Duration
	// LogOTPCodes writes participant login codes to the log when they cannot be emailed.
	LogOTPCodes   bool
	CSRFKey       []byte
	Production    bool
	SlowRequestMs int
}

// ErrBadCSRFKey is returned when a configured CSRF key is not 32 hex-encoded bytes.
var ErrBadCSRFKey = errors.New("CSRF key must be 64 hex characters (32 bytes)")

// ErrMissingCSRFKey is returned in production when no CSRF key is configured.
var ErrMissingCSRFKey = errors.New("CSRF key is required in production")

// LoadCSRFKey decodes the configured CSRF secret.
// In development a random key is generated per startup when none is set.
func LoadCSRFKey(keyHex string, production bool) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, ErrBadCSRFKey
		}
		return key, nil
	}
	if production {
		return nil, ErrMissingCSRFKey
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_generated", "reason", "no CARECAL_CSRF_KEY set; form sessions will not survive a restart")
	return key, nil
}

// Global stores instance (set by NewMux)
var stores *Stores

// Global settings (set by NewMux)
var settings Settings

// Global session store instance
var sessions *middleware.SessionStore

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// outboxProcessor retries deliveries from the admin outbox endpoints. May be nil.
var outboxProcessor *orchestrators.OutboxProcessor

func configure(s *Stores, cfg Settings, collector *perf.Collector, processor *orchestrators.OutboxProcessor) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = calendar.DefaultSlots()
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "CareCal"
	}
	stores = s
	settings = cfg
	perfCollector = collector
	outboxProcessor = processor
	sessions = middleware.NewSessionStore()
	middleware.SecureCookies = cfg.Production
}

// PruneSessions drops expired sessions. It is a no-op before NewMux.
func PruneSessions() int {
	if sessions == nil {
		return 0
	}
	return sessions.Prune()
}

// NewMux wires HTTP handlers for the app.
// PRE: s holds every store; cfg.CSRFKey is 32 bytes
// POST: returns the fully wrapped handler
func NewMux(staticDir string, s *Stores, cfg Settings, collector *perf.Collector, processor *orchestrators.OutboxProcessor) http.Handler {
	configure(s, cfg, collector, processor)

	mux := http.NewServeMux()
	if staticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)

	// Outermost first at runtime: Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(middleware.CSRFOptions{Key: cfg.CSRFKey, BaseURL: cfg.BaseURL, Secure: cfg.Production}),
		middleware.Auth(sessions),
		middleware.RateLimit(limiter),
		middleware.Timing(collector, cfg.SlowRequestMs),
	)
}
