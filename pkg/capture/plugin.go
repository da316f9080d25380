package capture

import (
	"context"
	"time"
)

// Plugin extends a Capture instance with background behavior.
// Plugins are initialized in registration order when Start() is called
// and shut down in reverse order during Stop().
type Plugin interface {
	// Name returns the plugin identifier for logs.
	Name() string

	// Initialize starts the plugin. The context is canceled when the
	// instance stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and releases its resources.
	Shutdown(ctx context.Context) error
}

// PluginConfig carries the instance configuration and hooks a plugin may
// need. Hooks are safe to call from plugin goroutines.
type PluginConfig struct {
	EndpointURL string
	StateDir    string
	SiteID      string
	AuthKey     string
	Logger      Logger

	// Kick requests an immediate drain of the retry queue. Connectivity
	// plugins call it when the endpoint becomes reachable again.
	Kick func()

	// PruneDeadLetters drops dead-lettered submissions created before
	// cutoff and returns how many were removed.
	PruneDeadLetters func(ctx context.Context, cutoff time.Time) (int, error)

	// PruneFragments evicts expired fragments from the cache and returns
	// the eviction count.
	PruneFragments func() int
}
