package capture

import (
	"fmt"
	"strings"
	"time"
)

// Store driver names accepted by Config.StoreDriver.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds the configuration for a Capture instance.
// Use SetDefaults() to fill zero values, then Validate() before New().
type Config struct {
	// EndpointURL is the lead submission endpoint. Required.
	EndpointURL string

	// AuthKey, when set, is sent as a bearer token on every submission.
	AuthKey string

	// SiteID and Hostname identify the deployment on outbound requests.
	// Both are optional.
	SiteID   string
	Hostname string

	// FragmentBaseURL is the root for shared markup fragments. Leave
	// empty to disable remote fragments; registered defaults still serve.
	FragmentBaseURL string

	// FragmentTTL is how long a fetched fragment is served from cache.
	FragmentTTL time.Duration

	// StateDir holds durable state for the fs and sqlite drivers.
	StateDir string

	// StoreDriver selects the durable store: "fs", "sqlite", or "memory".
	StoreDriver string

	// MaxAttempts bounds delivery tries per submission, the direct
	// attempt included.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the retry schedule:
	// attempt n is delayed by BackoffBase * 2^(n-1), capped.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// DeadLetterCap bounds the diagnostic dead-letter list.
	DeadLetterCap int

	// AnalyticsMaxAttempts bounds redelivery tries for failed conversion
	// events.
	AnalyticsMaxAttempts int

	// DedupeWindow suppresses a conversion event re-tracked with the
	// same id within the window.
	DedupeWindow time.Duration

	// ExitIntentDwell is how long a session must exist before
	// abandonment signals are honored.
	ExitIntentDwell time.Duration

	// ArmedThreshold is the minimum armed time before a scroll-toward-top
	// signal counts as exit intent.
	ArmedThreshold time.Duration

	// TouchPrimary marks sessions whose primary input cannot hover.
	TouchPrimary bool

	// PollInterval is how often the background loop sweeps the queue.
	PollInterval time.Duration

	// HTTPTimeout applies to the default HTTP client.
	HTTPTimeout time.Duration

	// Once makes Start perform a single replay sweep and stop.
	Once bool
}

// SetDefaults fills zero values with production defaults.
func (c *Config) SetDefaults() {
	if c.StoreDriver == "" {
		c.StoreDriver = DriverFS
	}
	if c.FragmentTTL <= 0 {
		c.FragmentTTL = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.DeadLetterCap <= 0 {
		c.DeadLetterCap = 50
	}
	if c.AnalyticsMaxAttempts <= 0 {
		c.AnalyticsMaxAttempts = 5
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = time.Minute
	}
	if c.ExitIntentDwell <= 0 {
		c.ExitIntentDwell = 10 * time.Second
	}
	if c.ArmedThreshold <= 0 {
		c.ArmedThreshold = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("capture: EndpointURL is required")
	}
	c.EndpointURL = strings.TrimRight(c.EndpointURL, "/")
	c.FragmentBaseURL = strings.TrimRight(c.FragmentBaseURL, "/")

	switch c.StoreDriver {
	case DriverFS, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("capture: unknown store driver %q", c.StoreDriver)
	}
	if c.StoreDriver != DriverMemory && c.StateDir == "" {
		return fmt.Errorf("capture: StateDir is required for the %s driver", c.StoreDriver)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("capture: BackoffCap must not be below BackoffBase")
	}
	return nil
}
