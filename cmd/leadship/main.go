package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/growthfoundry/leadship/internal/cliconfig"
	"github.com/growthfoundry/leadship/pkg/capture"
	logpkg "github.com/growthfoundry/leadship/pkg/log"
	"github.com/growthfoundry/leadship/plugins/configwatcher"
	"github.com/growthfoundry/leadship/plugins/connectivity"
	"github.com/growthfoundry/leadship/plugins/storecleanup"
)

const helpDescription = `
Keep every lead your marketing site captures, even when the network does not cooperate.

Highlights:
  - Queues failed submissions durably and replays them with backoff.
  - Recovers abandoning visitors with an A/B-tested exit-intent offer.
  - Fans conversion events out to analytics providers without losing them.
  - Configure via file, environment (LEADSHIP_*), or flags.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  leadship --endpoint-url https://api.example.com/leads --state-dir /var/lib/leadship
  leadship --config $HOME/.leadship/config.toml --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "leadship",
		Short:   "Durable lead capture with retry, exit-intent recovery, and analytics fan-out",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.leadship/config.toml),
			// then environment, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Apply environment variables (LEADSHIP_*)
			// These override file config but are overridden by flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			// Fill SiteID and Hostname from deploy-time sources if unset
			if err := cliconfig.LoadSiteInfo(&cfg); err != nil {
				return err
			}

			// Validate and set derived defaults
			if err := cfg.Validate(); err != nil {
				return err
			}

			// Log configuration (masking the API key)
			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			log.Info().Interface("config", logCfg).Msg("configuration")

			libCfg := capture.Config{
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

			zerologAdapter := logpkg.NewZerologAdapterWithLogger(log)

			c, err := capture.New(libCfg,
				capture.WithLogger(zerologAdapter),
				// Watch the config file so connectivity settings take
				// effect without a restart.
				configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}),
				// Probe the endpoint and drain the queue on recovery.
				connectivity.WithConnectivity(connectivity.Config{
					ProbeInterval: cfg.ProbeInterval,
					HTTPTimeout:   cfg.HTTPTimeout,
				}),
				// Keep dead letters and the fragment cache bounded.
				storecleanup.WithStoreCleanup(storecleanup.Config{
					DeadLetterAge: cfg.DeadLetterMaxAge,
				}),
			)
			if err != nil {
				return fmt.Errorf("create capture: %w", err)
			}

			// In CLI mode configured providers have no client SDK; deliver
			// their events to the log so the fan-out is observable.
			for _, id := range cfg.Providers {
				c.RegisterProvider(&logProvider{id: id, log: log})
			}

			// Setup signal handling for graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start capture: %w", err)
			}

			for _, id := range cfg.Providers {
				c.ProviderReady(ctx, id)
			}

			// Wait for signal or completion (once mode or crash)
			select {
			case <-sigCh:
				log.Info().Msg("received signal, stopping...")
			case <-c.Done():
				if c.Status() == capture.StateCrashed {
					log.Error().Msg("leadship crashed")
				}
			}

			// Graceful shutdown
			if err := c.Stop(); err != nil {
				return fmt.Errorf("stop capture: %w", err)
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.leadship/config.toml)")
	root.Flags().StringVar(&cfg.EndpointURL, "endpoint-url", cfg.EndpointURL, "lead submission endpoint URL")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	root.Flags().StringVar(&cfg.SiteID, "site-id", cfg.SiteID, "site identifier sent with every submission")
	root.Flags().StringVar(&cfg.Hostname, "hostname", cfg.Hostname, "hostname sent with every submission")

	root.Flags().StringVar(&cfg.FragmentBaseURL, "fragment-base-url", cfg.FragmentBaseURL, "base URL for shared markup fragments")
	root.Flags().DurationVar(&cfg.FragmentTTL, "fragment-ttl", cfg.FragmentTTL, "fragment cache time-to-live")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for durable state")
	root.Flags().StringVar(&cfg.StoreDriver, "store-driver", cfg.StoreDriver, "durable store driver: fs, sqlite, or memory")

	root.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "delivery attempts per submission, direct attempt included")
	root.Flags().DurationVar(&cfg.BackoffBase, "backoff-base", cfg.BackoffBase, "first retry delay")
	root.Flags().DurationVar(&cfg.BackoffCap, "backoff-cap", cfg.BackoffCap, "maximum retry delay")
	root.Flags().IntVar(&cfg.DeadLetterCap, "dead-letter-cap", cfg.DeadLetterCap, "maximum dead-letter records retained")
	root.Flags().DurationVar(&cfg.DeadLetterMaxAge, "dead-letter-max-age", cfg.DeadLetterMaxAge, "dead-letter retention window")

	root.Flags().StringSliceVar(&cfg.Providers, "providers", cfg.Providers, "analytics provider ids to register")
	root.Flags().IntVar(&cfg.AnalyticsMaxAttempts, "analytics-max-attempts", cfg.AnalyticsMaxAttempts, "redelivery attempts per failed conversion event")
	root.Flags().DurationVar(&cfg.DedupeWindow, "dedupe-window", cfg.DedupeWindow, "conversion event dedup window")

	root.Flags().DurationVar(&cfg.ExitIntentDwell, "dwell", cfg.ExitIntentDwell, "session dwell before exit-intent arms")
	root.Flags().DurationVar(&cfg.ArmedThreshold, "armed-threshold", cfg.ArmedThreshold, "minimum armed time before scroll signals count")
	root.Flags().BoolVar(&cfg.TouchPrimary, "touch-primary", cfg.TouchPrimary, "treat the session as touch-primary (no hover)")

	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "background replay sweep interval")
	root.Flags().DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "endpoint connectivity probe interval")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "run a single replay sweep and exit")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("leadship")
		os.Exit(1)
	}
}
