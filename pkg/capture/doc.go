// Package capture provides an embeddable lead-capture reliability core for
// marketing sites.
//
// Capture wraps lead submission in a durable pipeline: valid leads get one
// direct delivery attempt, and failures are persisted and retried with
// exponential backoff until they succeed or exhaust their budget. Around
// the pipeline it layers exit-intent recovery with a persisted A/B variant,
// an analytics dispatcher that isolates provider failures, and a cached
// loader for shared page fragments. It can be used as a standalone CLI
// application or embedded as a library in other Go programs.
//
// # Basic Usage
//
// To embed capture in your application:
//
//	cfg := capture.Config{
//	    EndpointURL: "https://api.example.com/leads",
//	    AuthKey:     "your-api-key",
//	    SiteID:      "my-site",
//	    StateDir:    "/var/lib/leadship",
//	}
//
//	c, err := capture.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	outcome := c.Submit(ctx, capture.Lead{
//	    FirstName: "Ada",
//	    LastName:  "Lovelace",
//	    Email:     "ada@example.com",
//	    Message:   "Tell me more about your analytical engines.",
//	})
//
//	// ... run until shutdown signal ...
//
//	if err := c.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Configuration
//
// Create a [Config] with at minimum EndpointURL and StateDir. All other
// fields have sensible defaults set via [Config.SetDefaults].
//
// # Event Handling
//
// To receive notifications about capture operations, implement
// [EventHandler] and pass it via [WithEventHandler]:
//
//	handler := &myEventHandler{}
//	c, err := capture.New(cfg, capture.WithEventHandler(handler))
//
// Events are called synchronously from internal goroutines.
// Implementations should return quickly to avoid blocking delivery.
//
// # Dependency Injection
//
// For testing, you can inject custom implementations of external
// dependencies:
//
//	c, err := capture.New(cfg,
//	    capture.WithHTTPClient(mockClient),
//	    capture.WithLogger(customLogger),
//	)
//
// # Lifecycle States
//
// A Capture instance can be in one of five states: [StateStopped],
// [StateStarting], [StateRunning], [StateStopping], or [StateCrashed].
// Use [Capture.Status] to query the current state.
//
// # Plugins
//
// Capture supports optional plugins for extended functionality:
//
//	import "github.com/growthfoundry/leadship/plugins/connectivity"
//	import "github.com/growthfoundry/leadship/plugins/configwatcher"
//	import "github.com/growthfoundry/leadship/plugins/storecleanup"
//
//	c, err := capture.New(cfg,
//	    connectivity.WithConnectivity(connectivity.DefaultConfig()),
//	    configwatcher.WithConfigWatcher(configwatcher.DefaultConfig()),
//	    storecleanup.WithStoreCleanup(storecleanup.DefaultConfig()),
//	)
package capture
