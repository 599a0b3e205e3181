package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"carecal/internal/domain/calendar"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CARECAL_"

// Defaults.
const (
	DefaultListen         = ":8080"
	DefaultDBPath         = "carecal.db"
	DefaultTimezone       = "Asia/Singapore"
	DefaultReminderCron   = "0 7 * * *"
	DefaultOutboxInterval = "1m"
	DefaultBaseURL        = "http://localhost:8080"
	DefaultImportHorizon  = 180
	DefaultSeriesLimit    = 104
	DefaultSlowRequestMs  = 200
	DefaultSlowQueryMs    = 50
)

// EmailConfig holds non-secret email settings.
type EmailConfig struct {
	From    string `yaml:"from"`
	ReplyTo string `yaml:"reply_to"`
}

// Secrets are read from the environment only and never written to the config file.
type Secrets struct {
	CSRFKey           string
	ResendKey         string
	SeedStaffEmail    string
	SeedStaffPassword string
}

// Config is the top-level application configuration.
type Config struct {
	// Env is "development" or "production".
	Env string `yaml:"env"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// Timezone is the IANA display zone every calendar is bucketed in.
	Timezone string `yaml:"timezone"`

	// Slots are the week-view row labels, e.g. "8 AM", "Noon", "1 PM".
	Slots []string `yaml:"slots"`

	// ReminderCron is a standard five-field cron spec evaluated in Timezone.
	ReminderCron string `yaml:"reminder_cron"`

	// OutboxInterval is how often pending emails are retried, as a Go duration.
	OutboxInterval string `yaml:"outbox_interval"`

	// BaseURL is the public origin used in emails and QR codes.
	BaseURL string `yaml:"base_url"`

	// ImportHorizonDays bounds RRULE expansion for imported calendars.
	ImportHorizonDays int `yaml:"import_horizon_days"`

	// SeriesLimit caps how many occurrences one recurring event may create.
	SeriesLimit int `yaml:"series_limit"`

	// SlowRequestMs is the threshold above which a request is logged at warn level.
	SlowRequestMs int `yaml:"slow_request_ms"`

	// SlowQueryMs is the threshold above which a SQL statement is logged at warn level.
	SlowQueryMs int `yaml:"slow_query_ms"`

	Email EmailConfig `yaml:"email"`

	Secrets Secrets `yaml:"-"`
}

// Resolved carries the parsed, validated forms of config values.
type Resolved struct {
	Location       *time.Location
	Slots          []calendar.Slot
	OutboxInterval time.Duration
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env:               "development",
		Listen:            DefaultListen,
		DBPath:            DefaultDBPath,
		Timezone:          DefaultTimezone,
		Slots:             append([]string(nil), calendar.DefaultSlotLabels...),
		ReminderCron:      DefaultReminderCron,
		OutboxInterval:    DefaultOutboxInterval,
		BaseURL:           DefaultBaseURL,
		ImportHorizonDays: DefaultImportHorizon,
		SeriesLimit:       DefaultSeriesLimit,
		SlowRequestMs:     DefaultSlowRequestMs,
		SlowQueryMs:       DefaultSlowQueryMs,
		Email: EmailConfig{
			From:    "CareCal <noreply@carecal.sg>",
			ReplyTo: "help@carecal.sg",
		},
	}
}

// Normalize fills in missing values with defaults so partially-filled files still work.
// PRE: none
// POST: every field that has a default is non-zero
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Env == "" {
		c.Env = d.Env
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if len(c.Slots) == 0 {
		c.Slots = d.Slots
	}
	if c.ReminderCron == "" {
		c.ReminderCron = d.ReminderCron
	}
	if c.OutboxInterval == "" {
		c.OutboxInterval = d.OutboxInterval
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = d.ImportHorizonDays
	}
	if c.SeriesLimit <= 0 {
		c.SeriesLimit = d.SeriesLimit
	}
	if c.SlowRequestMs <= 0 {
		c.SlowRequestMs = d.SlowRequestMs
	}
	if c.SlowQueryMs <= 0 {
		c.SlowQueryMs = d.SlowQueryMs
	}
	if c.Email.From == "" {
		c.Email.From = d.Email.From
	}
	if c.Email.ReplyTo == "" {
		c.Email.ReplyTo = d.Email.ReplyTo
	}
}

// ApplyEnv overlays CARECAL_* environment variables onto c.
// PRE: getenv is non-nil (os.Getenv in production)
// POST: set variables win over file values; secrets are populated
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("ENV", &c.Env)
	str("ADDR", &c.Listen)
	str("DB_PATH", &c.DBPath)
	str("TIMEZONE", &c.Timezone)
	str("REMINDER_CRON", &c.ReminderCron)
	str("OUTBOX_INTERVAL", &c.OutboxInterval)
	str("BASE_URL", &c.BaseURL)
	str("EMAIL_FROM", &c.Email.From)
	str("REPLY_TO", &c.Email.ReplyTo)
	num := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	num("IMPORT_HORIZON_DAYS", &c.ImportHorizonDays)
	num("SERIES_LIMIT", &c.SeriesLimit)
	num("SLOW_REQUEST_MS", &c.SlowRequestMs)
	num("SLOW_QUERY_MS", &c.SlowQueryMs)

	str("CSRF_KEY", &c.Secrets.CSRFKey)
	str("RESEND_KEY", &c.Secrets.ResendKey)
	str("STAFF_EMAIL", &c.Secrets.SeedStaffEmail)
	str("STAFF_PASSWORD", &c.Secrets.SeedStaffPassword)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate parses every value that can be wrong and fails loudly on the first problem.
// PRE: Normalize has run
// POST: Resolved holds a usable location, slot list and interval
func (c *Config) Validate() (Resolved, error) {
	loc, err := calendar.LoadDisplayLocation(c.Timezone)
	if err != nil {
		return Resolved{}, fmt.Errorf("config timezone: %w", err)
	}
	slots, err := calendar.ParseSlots(c.Slots)
	if err != nil {
		return Resolved{}, fmt.Errorf("config slots: %w", err)
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		return Resolved{}, fmt.Errorf("config reminder_cron %q: %w", c.ReminderCron, err)
	}
	interval, err := time.ParseDuration(c.OutboxInterval)
	if err != nil || interval <= 0 {
		return Resolved{}, fmt.Errorf("config outbox_interval %q: must be a positive duration", c.OutboxInterval)
	}
	if c.IsProduction() && len(c.Secrets.CSRFKey) != 64 {
		return Resolved{}, errors.New("CARECAL_CSRF_KEY must be 64 hex characters in production")
	}
	return Resolved{Location: loc, Slots: slots, OutboxInterval: interval}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 permissions.
// PRE: path is non-empty; cfg is non-nil
// POST: path holds the normalized YAML; secrets are never written
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".carecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
