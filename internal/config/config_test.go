package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.MaxMessages != 10 || cfg.RateLimit.WindowSeconds != 60 {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.StaleThresholdSeconds != 60 {
		t.Errorf("stale threshold = %d, want 60", cfg.StaleThresholdSeconds)
	}
	if cfg.Provider != ProviderAuto {
		t.Errorf("provider = %q, want auto", cfg.Provider)
	}
}

func TestLoad_YAML(t *testing.T) {
	root := t.TempDir()
	body := "session_name: test-swarm\nprovider: filedrop\nstale_threshold_seconds: 120\nrate_limit:\n  max_messages: 20\n  window_seconds: 30\n"
	if err := os.WriteFile(filepath.Join(root, ".claudeswarm.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionName != "test-swarm" {
		t.Errorf("session name = %q", cfg.SessionName)
	}
	if cfg.Provider != ProviderFileDrop {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.RateLimit.MaxMessages != 20 {
		t.Errorf("max messages = %d", cfg.RateLimit.MaxMessages)
	}
	// Unset fields keep defaults.
	if cfg.LockStaleTimeoutSeconds != 600 {
		t.Errorf("lock stale timeout = %d, want default 600", cfg.LockStaleTimeoutSeconds)
	}
}

func TestLoad_TOML(t *testing.T) {
	root := t.TempDir()
	body := "provider = \"tmux\"\nlock_stale_timeout_seconds = 300\n\n[rate_limit]\nmax_messages = 5\nwindow_seconds = 10\n"
	if err := os.WriteFile(filepath.Join(root, ".claudeswarm.toml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderTmux {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.LockStaleTimeoutSeconds != 300 {
		t.Errorf("lock stale timeout = %d", cfg.LockStaleTimeoutSeconds)
	}
	if cfg.RateLimit.MaxMessages != 5 {
		t.Errorf("max messages = %d", cfg.RateLimit.MaxMessages)
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	root := t.TempDir()
	body := "stale_threshold_seconds: 5\n"
	if err := os.WriteFile(filepath.Join(root, ".claudeswarm.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(root); err == nil {
		t.Error("expected validation error for stale threshold below bound")
	}
}

func TestValidate_Provider(t *testing.T) {
	cfg := Default()
	cfg.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
}
