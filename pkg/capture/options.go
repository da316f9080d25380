package capture

import (
	"context"
	"math/rand"
	"net/http"

	"github.com/growthfoundry/leadship/internal/ports"
	"github.com/growthfoundry/leadship/pkg/log"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the structured logging interface from pkg/log.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// Option configures optional behavior of a Capture instance.
type Option func(*options)

// options holds the optional configuration for a Capture instance.
type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	plugins      []Plugin
	providers    []Provider
	renderer     OfferRenderer
	randf        func() float64
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
		randf:      rand.Float64,
	}
}

// OfferRenderer renders the recovery offer for the assigned A/B variant
// ("control" or "treatment"). Returning an error keeps the offer
// unrendered; the engine retries on the next abandonment signal.
type OfferRenderer func(ctx context.Context, variant string) error

// WithHTTPClient sets a custom HTTP client for outbound requests.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for capture events.
// Events are called synchronously from internal goroutines.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the instance starts.
// Plugins are initialized in registration order and shut down in reverse
// order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithOfferRenderer sets the renderer invoked when the recovery offer is
// shown. If not provided, the offer fragment for the assigned variant is
// loaded through the fragment cache.
func WithOfferRenderer(renderer OfferRenderer) Option {
	return func(o *options) {
		o.renderer = renderer
	}
}

// WithProvider registers an analytics provider at construction, in
// not-ready state. Equivalent to calling RegisterProvider before use.
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.providers = append(o.providers, p)
	}
}
