package configwatcher

import "github.com/growthfoundry/leadship/pkg/capture"

// WithConfigWatcher returns a capture Option that enables config file
// watching. When the file changes, the plugin runs the configured change
// hook and kicks the replay loop.
//
// Usage:
//
//	c, err := capture.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/leadship/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) capture.Option {
	plugin := New(cfg)
	return capture.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a capture Option that enables config
// watching with default settings (~/.leadship/config.toml, debounce 100ms).
//
// Usage:
//
//	c, err := capture.New(cfg, configwatcher.WithDefaultConfigWatcher())
func WithDefaultConfigWatcher() capture.Option {
	return WithConfigWatcher(DefaultConfig())
}
