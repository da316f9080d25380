package connectivity

import "github.com/growthfoundry/leadship/pkg/capture"

// WithConnectivity returns a capture Option that enables endpoint
// reachability probing. When the endpoint comes back after an outage, the
// plugin kicks the replay loop so queued leads drain immediately.
//
// Usage:
//
//	c, err := capture.New(cfg,
//	    connectivity.WithConnectivity(connectivity.Config{
//	        ProbeInterval: 15 * time.Second,
//	    }),
//	)
func WithConnectivity(cfg Config) capture.Option {
	plugin := New(cfg)
	return capture.WithPlugin(plugin)
}

// WithDefaultConnectivity returns a capture Option that enables probing
// with default settings (probe every 15s, 5s timeout).
//
// Usage:
//
//	c, err := capture.New(cfg, connectivity.WithDefaultConnectivity())
func WithDefaultConnectivity() capture.Option {
	return WithConnectivity(DefaultConfig())
}
