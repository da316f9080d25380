// Package leadship provides a lead-capture reliability layer for marketing
// sites: durable submission retry, exit-intent recovery, analytics fan-out,
// and cached shared fragments.
//
// Example usage:
//
//	cfg := leadship.DefaultConfig()
//	cfg.EndpointURL = "https://api.example.com/leads"
//	cfg.StateDir = "/var/lib/leadship"
//	if err := leadship.LoadSiteInfo(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := leadship.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// For embedding in an application, use the richer API in pkg/capture.
package leadship

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/growthfoundry/leadship/internal/cliconfig"
	"github.com/growthfoundry/leadship/pkg/capture"
	"github.com/growthfoundry/leadship/pkg/log"
	"github.com/growthfoundry/leadship/plugins/connectivity"
	"github.com/growthfoundry/leadship/plugins/storecleanup"
)

// Config holds the configuration for the lead-capture service.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set EndpointURL and StateDir before calling Run.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// LoadSiteInfo fills SiteID and Hostname from deploy-time sources: SiteID
// from site.json in the state directory, Hostname from the OS.
// This should be called after setting cfg.StateDir and before Run.
func LoadSiteInfo(cfg *Config) error {
	return cliconfig.LoadSiteInfo(cfg)
}

// Logger returns the package-level zerolog logger used by the CLI.
func Logger() zerolog.Logger {
	return cliconfig.Logger()
}

// Run starts the lead-capture service with the given configuration.
// It blocks until the context is cancelled or, with cfg.Once set, until a
// single replay sweep completes.
func Run(ctx context.Context, cfg Config) error {
	c, err := capture.New(toCaptureConfig(cfg),
		capture.WithLogger(log.NewZerologAdapterWithLogger(cliconfig.Logger())),
		connectivity.WithConnectivity(connectivity.Config{
			ProbeInterval: cfg.ProbeInterval,
			HTTPTimeout:   cfg.HTTPTimeout,
		}),
		storecleanup.WithStoreCleanup(storecleanup.Config{
			DeadLetterAge: cfg.DeadLetterMaxAge,
		}),
	)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-c.Done():
	}

	if c.Status() == capture.StateCrashed {
		return fmt.Errorf("leadship crashed")
	}
	return c.Stop()
}

// toCaptureConfig converts the CLI configuration to the library's.
func toCaptureConfig(cfg Config) capture.Config {
	return capture.Config{
		EndpointURL:          cfg.EndpointURL,
		AuthKey:              cfg.AuthKey,
		SiteID:               cfg.SiteID,
		Hostname:             cfg.Hostname,
		FragmentBaseURL:      cfg.FragmentBaseURL,
		FragmentTTL:          cfg.FragmentTTL,
		StateDir:             cfg.StateDir,
		StoreDriver:          cfg.StoreDriver,
		MaxAttempts:          cfg.MaxAttempts,
		BackoffBase:          cfg.BackoffBase,
		BackoffCap:           cfg.BackoffCap,
		DeadLetterCap:        cfg.DeadLetterCap,
		AnalyticsMaxAttempts: cfg.AnalyticsMaxAttempts,
		DedupeWindow:         cfg.DedupeWindow,
		ExitIntentDwell:      cfg.ExitIntentDwell,
		ArmedThreshold:       cfg.ArmedThreshold,
		TouchPrimary:         cfg.TouchPrimary,
		PollInterval:         cfg.PollInterval,
		HTTPTimeout:          cfg.HTTPTimeout,
		Once:                 cfg.Once,
	}
}
