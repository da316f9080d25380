package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfigFile(t, `
endpoint_url = "https://api.example.com/leads"
auth_key = "tok"
site_id = "site-1"
store_driver = "sqlite"
state_dir = "/var/lib/leadship"
max_attempts = 7
backoff_base = "250ms"
poll_interval = "1m"
providers = ["ga4", "ads"]
touch_primary = true
`)

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.EndpointURL != "https://api.example.com/leads" || fc.AuthKey != "tok" {
		t.Fatalf("fc = %+v", fc)
	}
	if len(fc.Providers) != 2 || fc.Providers[0] != "ga4" {
		t.Fatalf("providers = %v", fc.Providers)
	}
	if fc.TouchPrimary == nil || !*fc.TouchPrimary {
		t.Fatal("touch_primary not parsed")
	}
}

func TestLoadFileConfigErrors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing file did not error")
	}
	path := writeConfigFile(t, `endpoint_url = [broken`)
	if _, err := LoadFileConfig(path); err == nil {
		t.Fatal("malformed toml did not error")
	}
}

func TestApplyFileConfig(t *testing.T) {
	fc := FileConfig{
		EndpointURL:  "https://file.example.com",
		MaxAttempts:  9,
		BackoffBase:  "2s",
		PollInterval: "90s",
		Providers:    []string{"ga4"},
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.EndpointURL != "https://file.example.com" {
		t.Errorf("endpoint = %q", cfg.EndpointURL)
	}
	if cfg.MaxAttempts != 9 || cfg.BackoffBase != 2*time.Second || cfg.PollInterval != 90*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0] != "ga4" {
		t.Errorf("providers = %v", cfg.Providers)
	}
}

func TestApplyFileConfigRespectsChangedFlags(t *testing.T) {
	fc := FileConfig{
		EndpointURL: "https://file.example.com",
		MaxAttempts: 9,
	}

	cfg := DefaultConfig()
	cfg.EndpointURL = "https://flag.example.com"
	changed := map[string]bool{"endpoint-url": true}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.EndpointURL != "https://flag.example.com" {
		t.Errorf("flag value overridden: %q", cfg.EndpointURL)
	}
	if cfg.MaxAttempts != 9 {
		t.Errorf("unflagged value not applied: %d", cfg.MaxAttempts)
	}
}

func TestApplyFileConfigBadDuration(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyFileConfig(&cfg, FileConfig{BackoffBase: "soon"}, map[string]bool{})
	if err == nil {
		t.Fatal("bad duration did not error")
	}
}
