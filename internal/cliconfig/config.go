// Package cliconfig holds the CLI-facing configuration for leadship and
// the precedence machinery that merges flags, environment variables, and
// the TOML config file.
package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store driver names accepted by --store-driver.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds CLI configuration for leadship.
type Config struct {
	EndpointURL string
	AuthKey     string
	SiteID      string
	Hostname    string

	FragmentBaseURL string
	FragmentTTL     time.Duration

	StateDir    string
	StoreDriver string

	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	DeadLetterCap    int
	DeadLetterMaxAge time.Duration

	Providers            []string
	AnalyticsMaxAttempts int
	DedupeWindow         time.Duration

	ExitIntentDwell time.Duration
	ArmedThreshold  time.Duration
	TouchPrimary    bool

	PollInterval  time.Duration
	ProbeInterval time.Duration
	HTTPTimeout   time.Duration
	Once          bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoreDriver:          DriverFS,
		FragmentTTL:          5 * time.Minute,
		MaxAttempts:          5,
		BackoffBase:          500 * time.Millisecond,
		BackoffCap:           30 * time.Second,
		DeadLetterCap:        50,
		DeadLetterMaxAge:     30 * 24 * time.Hour,
		AnalyticsMaxAttempts: 5,
		DedupeWindow:         time.Minute,
		ExitIntentDwell:      10 * time.Second,
		ArmedThreshold:       5 * time.Second,
		PollInterval:         30 * time.Second,
		ProbeInterval:        15 * time.Second,
		HTTPTimeout:          15 * time.Second,
		AuthKey:              os.Getenv("LEADSHIP_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("endpoint-url is required")
	}
	c.EndpointURL = strings.TrimRight(c.EndpointURL, "/")
	c.FragmentBaseURL = strings.TrimRight(c.FragmentBaseURL, "/")

	switch c.StoreDriver {
	case DriverFS, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("store-driver must be one of %s, %s, %s", DriverFS, DriverSQLite, DriverMemory)
	}

	if c.StateDir == "" && c.StoreDriver != DriverMemory {
		return fmt.Errorf("state-dir is required for the %s driver", c.StoreDriver)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1")
	}
	if c.BackoffBase <= 0 || c.BackoffCap <= 0 {
		return fmt.Errorf("backoff durations must be positive")
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff-cap must not be below backoff-base")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a string slice if non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setStringsFromString splits a comma-separated list and sets the
// destination. Used for environment variables that come as strings.
func (s *configSetter) setStringsFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
