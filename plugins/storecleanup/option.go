package storecleanup

import "github.com/growthfoundry/leadship/pkg/capture"

// WithStoreCleanup returns a capture Option that enables periodic pruning
// of aged dead-letter records and expired fragment cache entries.
//
// Usage:
//
//	c, err := capture.New(cfg,
//	    storecleanup.WithStoreCleanup(storecleanup.Config{
//	        CheckInterval: time.Hour,
//	        DeadLetterAge: 30 * 24 * time.Hour,
//	    }),
//	)
func WithStoreCleanup(cfg Config) capture.Option {
	plugin := New(cfg)
	return capture.WithPlugin(plugin)
}

// WithDefaultStoreCleanup returns a capture Option that enables cleanup
// with default settings (hourly, 30-day dead-letter retention).
//
// Usage:
//
//	c, err := capture.New(cfg, storecleanup.WithDefaultStoreCleanup())
func WithDefaultStoreCleanup() capture.Option {
	return WithStoreCleanup(DefaultConfig())
}
