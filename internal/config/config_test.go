package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithOptions_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KEYFORGE_BASE_URL", "")
	t.Setenv("KEYFORGE_TENANT", "")
	t.Setenv("KEYFORGE_TIMEOUT", "")
	t.Setenv("CERT_PAGE_SIZE", "")

	cfg, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.KeyForgeBaseURL != defaultKeyForgeBaseURL {
		t.Fatalf("KeyForgeBaseURL = %q, want %q", cfg.KeyForgeBaseURL, defaultKeyForgeBaseURL)
	}
	if cfg.KeyForgeTenant != "ACMECOM" {
		t.Fatalf("KeyForgeTenant = %q, want ACMECOM", cfg.KeyForgeTenant)
	}
	if cfg.KeyForgeTimeout != 0 {
		t.Fatalf("KeyForgeTimeout = %s, want 0", cfg.KeyForgeTimeout)
	}
	if cfg.CertPageSize != 10 || cfg.ExportRowLimit != 3000 {
		t.Fatalf("unexpected paging defaults: %+v", cfg)
	}
}

func TestLoadWithOptions_ParsesOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KEYFORGE_BASE_URL", "https://kf.example.test/")
	t.Setenv("KEYFORGE_TIMEOUT", "45s")
	t.Setenv("CERT_PAGE_SIZE", "25")
	t.Setenv("FANOUT_WORKERS", "0")
	t.Setenv("CACHE_TTL", "nonsense")

	cfg, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.KeyForgeBaseURL != "https://kf.example.test" {
		t.Fatalf("KeyForgeBaseURL = %q", cfg.KeyForgeBaseURL)
	}
	if cfg.KeyForgeTimeout != 45*time.Second {
		t.Fatalf("KeyForgeTimeout = %s, want 45s", cfg.KeyForgeTimeout)
	}
	if cfg.CertPageSize != 25 {
		t.Fatalf("CertPageSize = %d, want 25", cfg.CertPageSize)
	}
	if cfg.FanoutWorkers != defaultFanoutWorkers {
		t.Fatalf("FanoutWorkers = %d, want default %d", cfg.FanoutWorkers, defaultFanoutWorkers)
	}
	if cfg.CacheTTL != defaultCacheTTL {
		t.Fatalf("CacheTTL = %s, want default", cfg.CacheTTL)
	}
}

func TestLoadWithOptions_RequireDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: true}); err == nil {
		t.Fatal("expected DATABASE_URL error")
	}
}

func TestLoadReminders_MissingFileUsesDefaults(t *testing.T) {
	r, err := LoadReminders(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadReminders() error = %v", err)
	}
	if r.Schedule != defaultReminderSchedule {
		t.Fatalf("Schedule = %q, want %q", r.Schedule, defaultReminderSchedule)
	}
	if r.DueSoonWindow() != 72*time.Hour {
		t.Fatalf("DueSoonWindow = %s, want 72h", r.DueSoonWindow())
	}
	if len(r.Reviewers) != 0 {
		t.Fatalf("Reviewers = %v, want none", r.Reviewers)
	}
}

func TestLoadReminders_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.yaml")
	body := "schedule: \"30 8 * * 1\"\ntimezone: Europe/Berlin\ndue_soon_days: 5\nreviewers:\n  - r-1\n  - \" r-2 \"\n  - r-1\n  - \"\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := LoadReminders(path)
	if err != nil {
		t.Fatalf("LoadReminders() error = %v", err)
	}
	if r.Schedule != "30 8 * * 1" || r.DueSoonDays != 5 {
		t.Fatalf("unexpected reminders: %+v", r)
	}
	if r.Location == nil || r.Location.String() != "Europe/Berlin" {
		t.Fatalf("Location = %v, want Europe/Berlin", r.Location)
	}
	if len(r.Reviewers) != 2 || r.Reviewers[0] != "r-1" || r.Reviewers[1] != "r-2" {
		t.Fatalf("Reviewers = %v, want [r-1 r-2]", r.Reviewers)
	}
}

func TestLoadReminders_RejectsBadSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.yaml")
	if err := os.WriteFile(path, []byte("schedule: \"every day\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadReminders(path); err == nil {
		t.Fatal("expected schedule error")
	}
}
