package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	EndpointURL string `toml:"endpoint_url"`
	AuthKey     string `toml:"auth_key"`
	SiteID      string `toml:"site_id"`
	Hostname    string `toml:"hostname"`

	FragmentBaseURL string `toml:"fragment_base_url"`
	FragmentTTL     string `toml:"fragment_ttl"`

	StateDir    string `toml:"state_dir"`
	StoreDriver string `toml:"store_driver"`

	MaxAttempts      int    `toml:"max_attempts"`
	BackoffBase      string `toml:"backoff_base"`
	BackoffCap       string `toml:"backoff_cap"`
	DeadLetterCap    int    `toml:"dead_letter_cap"`
	DeadLetterMaxAge string `toml:"dead_letter_max_age"`

	Providers            []string `toml:"providers"`
	AnalyticsMaxAttempts int      `toml:"analytics_max_attempts"`
	DedupeWindow         string   `toml:"dedupe_window"`

	ExitIntentDwell string `toml:"exit_intent_dwell"`
	ArmedThreshold  string `toml:"armed_threshold"`
	TouchPrimary    *bool  `toml:"touch_primary"`

	PollInterval  string `toml:"poll_interval"`
	ProbeInterval string `toml:"probe_interval"`
	HTTPTimeout   string `toml:"http_timeout"`
	Once          *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.leadship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".leadship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint-url", fc.EndpointURL, &cfg.EndpointURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("site-id", fc.SiteID, &cfg.SiteID)
	s.setString("hostname", fc.Hostname, &cfg.Hostname)
	s.setString("fragment-base-url", fc.FragmentBaseURL, &cfg.FragmentBaseURL)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("store-driver", fc.StoreDriver, &cfg.StoreDriver)

	if err := s.setDuration("fragment-ttl", fc.FragmentTTL, &cfg.FragmentTTL); err != nil {
		return err
	}
	if err := s.setDuration("backoff-base", fc.BackoffBase, &cfg.BackoffBase); err != nil {
		return err
	}
	if err := s.setDuration("backoff-cap", fc.BackoffCap, &cfg.BackoffCap); err != nil {
		return err
	}
	if err := s.setDuration("dead-letter-max-age", fc.DeadLetterMaxAge, &cfg.DeadLetterMaxAge); err != nil {
		return err
	}
	if err := s.setDuration("dedupe-window", fc.DedupeWindow, &cfg.DedupeWindow); err != nil {
		return err
	}
	if err := s.setDuration("dwell", fc.ExitIntentDwell, &cfg.ExitIntentDwell); err != nil {
		return err
	}
	if err := s.setDuration("armed-threshold", fc.ArmedThreshold, &cfg.ArmedThreshold); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", fc.ProbeInterval, &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setInt("dead-letter-cap", fc.DeadLetterCap, &cfg.DeadLetterCap)
	s.setInt("analytics-max-attempts", fc.AnalyticsMaxAttempts, &cfg.AnalyticsMaxAttempts)

	s.setStrings("providers", fc.Providers, &cfg.Providers)

	s.setBool("touch-primary", fc.TouchPrimary, &cfg.TouchPrimary)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
