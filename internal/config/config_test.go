package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "time/tzdata"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carecal.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != DefaultTimezone || len(cfg.Slots) != 10 {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carecal.yaml")
	os.WriteFile(path, []byte("timezone: Europe/London\nslots: [\"9 AM\", \"Noon\"]\n"), 0o600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "Europe/London" || len(cfg.Slots) != 2 {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.Listen != DefaultListen || cfg.ReminderCron != DefaultReminderCron {
		t.Errorf("missing values not defaulted: %+v", cfg)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carecal.yaml")
	os.WriteFile(path, []byte("slots: [unterminated"), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSave_OmitsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carecal.yaml")
	cfg := DefaultConfig()
	cfg.Secrets.ResendKey = "re_supersecret"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "re_supersecret") {
		t.Error("secret written to config file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CARECAL_ADDR":                ":9090",
		"CARECAL_TIMEZONE":            "America/New_York",
		"CARECAL_RESEND_KEY":          "re_x",
		"CARECAL_STAFF_EMAIL":         "boss@carecal.sg",
		"CARECAL_IMPORT_HORIZON_DAYS": "30",
		"CARECAL_SLOW_QUERY_MS":       "120",
		"CARECAL_SERIES_LIMIT":        "not-a-number",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Listen != ":9090" || cfg.Timezone != "America/New_York" || cfg.ImportHorizonDays != 30 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Secrets.ResendKey != "re_x" || cfg.Secrets.SeedStaffEmail != "boss@carecal.sg" {
		t.Errorf("secrets not read: %+v", cfg.Secrets)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("unset variable changed DBPath to %q", cfg.DBPath)
	}
	if cfg.SlowQueryMs != 120 {
		t.Errorf("SlowQueryMs = %d, want 120", cfg.SlowQueryMs)
	}
	if cfg.SeriesLimit != DefaultSeriesLimit {
		t.Errorf("unparseable SERIES_LIMIT changed SeriesLimit to %d", cfg.SeriesLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Base" }, "timezone"},
		{"host-local timezone", func(c *Config) { c.Timezone = "Local" }, "timezone"},
		{"bad slot", func(c *Config) { c.Slots = []string{"9 AM", "lunch"} }, "slots"},
		{"bad cron", func(c *Config) { c.ReminderCron = "every morning" }, "reminder_cron"},
		{"bad interval", func(c *Config) { c.OutboxInterval = "-1m" }, "outbox_interval"},
		{"production needs csrf key", func(c *Config) { c.Env = "production" }, "CSRF_KEY"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			res, err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Location.String() != DefaultTimezone || len(res.Slots) != 10 {
					t.Errorf("Resolved = %+v", res)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
