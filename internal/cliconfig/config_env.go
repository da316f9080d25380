package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (LEADSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint-url", os.Getenv("LEADSHIP_ENDPOINT_URL"), &cfg.EndpointURL)
	s.setString("auth-key", os.Getenv("LEADSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setString("site-id", os.Getenv("LEADSHIP_SITE_ID"), &cfg.SiteID)
	s.setString("hostname", os.Getenv("LEADSHIP_HOSTNAME"), &cfg.Hostname)
	s.setString("fragment-base-url", os.Getenv("LEADSHIP_FRAGMENT_BASE_URL"), &cfg.FragmentBaseURL)
	s.setString("state-dir", os.Getenv("LEADSHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("store-driver", os.Getenv("LEADSHIP_STORE_DRIVER"), &cfg.StoreDriver)

	if err := s.setDuration("fragment-ttl", os.Getenv("LEADSHIP_FRAGMENT_TTL"), &cfg.FragmentTTL); err != nil {
		return err
	}
	if err := s.setDuration("backoff-base", os.Getenv("LEADSHIP_BACKOFF_BASE"), &cfg.BackoffBase); err != nil {
		return err
	}
	if err := s.setDuration("backoff-cap", os.Getenv("LEADSHIP_BACKOFF_CAP"), &cfg.BackoffCap); err != nil {
		return err
	}
	if err := s.setDuration("dead-letter-max-age", os.Getenv("LEADSHIP_DEAD_LETTER_MAX_AGE"), &cfg.DeadLetterMaxAge); err != nil {
		return err
	}
	if err := s.setDuration("dedupe-window", os.Getenv("LEADSHIP_DEDUPE_WINDOW"), &cfg.DedupeWindow); err != nil {
		return err
	}
	if err := s.setDuration("dwell", os.Getenv("LEADSHIP_EXIT_INTENT_DWELL"), &cfg.ExitIntentDwell); err != nil {
		return err
	}
	if err := s.setDuration("armed-threshold", os.Getenv("LEADSHIP_ARMED_THRESHOLD"), &cfg.ArmedThreshold); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("LEADSHIP_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", os.Getenv("LEADSHIP_PROBE_INTERVAL"), &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("LEADSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-attempts", os.Getenv("LEADSHIP_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("dead-letter-cap", os.Getenv("LEADSHIP_DEAD_LETTER_CAP"), &cfg.DeadLetterCap); err != nil {
		return err
	}
	if err := s.setIntFromString("analytics-max-attempts", os.Getenv("LEADSHIP_ANALYTICS_MAX_ATTEMPTS"), &cfg.AnalyticsMaxAttempts); err != nil {
		return err
	}

	s.setStringsFromString("providers", os.Getenv("LEADSHIP_PROVIDERS"), &cfg.Providers)

	s.setBoolFromString("touch-primary", os.Getenv("LEADSHIP_TOUCH_PRIMARY"), &cfg.TouchPrimary)
	s.setBoolFromString("once", os.Getenv("LEADSHIP_ONCE"), &cfg.Once)

	return nil
}
