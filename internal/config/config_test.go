package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "karmabot.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "abc" {
		t.Fatalf("expected token from file, got %q", cfg.Telegram.Token)
	}
	if cfg.Database.Path != "karmabot.db" {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
	if cfg.Retention.Horizon.Std() != 90*24*time.Hour {
		t.Fatalf("expected default horizon, got %v", cfg.Retention.Horizon.Std())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7339" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, "retention:\n  horizon: 72h\n  sweep_interval: 30m\n  batch_size: 50\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retention.Horizon.Std() != 72*time.Hour {
		t.Fatalf("expected 72h, got %v", cfg.Retention.Horizon.Std())
	}
	if cfg.Retention.SweepInterval.Std() != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", cfg.Retention.SweepInterval.Std())
	}
	if cfg.Retention.BatchSize != 50 {
		t.Fatalf("expected 50, got %d", cfg.Retention.BatchSize)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "retention:\n  horizon: ninety-days\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsNonPositiveHorizon(t *testing.T) {
	path := writeConfig(t, "retention:\n  horizon: -1h\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsBadPercentile(t *testing.T) {
	path := writeConfig(t, "gate:\n  top_percentile: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTokenEnvOverride(t *testing.T) {
	t.Setenv("KARMABOT_TELEGRAM_TOKEN", "env-token")
	path := writeConfig(t, "telegram:\n  token: file-token\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env override, got %q", cfg.Telegram.Token)
	}
}

func TestResolvePathEnv(t *testing.T) {
	t.Setenv("KARMABOT_CONFIG", "/etc/karmabot/karmabot.yaml")
	if got := ResolvePath(); got != "/etc/karmabot/karmabot.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}
}

func TestWriteStarterRefusesClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "karmabot.yaml")
	if err := WriteStarter(path); err != nil {
		t.Fatalf("write starter: %v", err)
	}
	if err := WriteStarter(path); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	// Starter must load clean.
	if _, err := Load(path); err != nil {
		t.Fatalf("starter config does not load: %v", err)
	}
}
