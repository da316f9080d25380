// Package storecleanup provides periodic state maintenance for capture.
// When enabled, it prunes aged dead-letter records and expired fragment
// cache entries to keep durable state bounded.
package storecleanup

import (
	"context"
	"sync"
	"time"

	"github.com/growthfoundry/leadship/pkg/capture"
)

// Plugin implements periodic store cleanup.
// It removes dead-letter records older than the retention window and
// drops expired fragments from the cache.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval  time.Duration
	deadLetterAge  time.Duration
	runImmediately bool

	// Runtime state
	logger           capture.Logger
	pruneDeadLetters func(ctx context.Context, cutoff time.Time) (int, error)
	pruneFragments   func() int
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// Config holds configuration options for the store cleanup plugin.
type Config struct {
	// CheckInterval is how often to run cleanup.
	// Default: 1 hour
	CheckInterval time.Duration

	// DeadLetterAge is how long dead-letter records are retained.
	// Default: 30 days
	DeadLetterAge time.Duration

	// RunImmediately if true, runs a cleanup pass on startup.
	// Default: true
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  time.Hour,
		DeadLetterAge:  30 * 24 * time.Hour,
		RunImmediately: true,
	}
}

// New creates a new store cleanup plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.DeadLetterAge <= 0 {
		cfg.DeadLetterAge = 30 * 24 * time.Hour
	}

	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		deadLetterAge:  cfg.DeadLetterAge,
		runImmediately: cfg.RunImmediately,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "storecleanup"
}

// Initialize sets up the plugin and starts the cleanup loop.
func (p *Plugin) Initialize(ctx context.Context, cfg capture.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.pruneDeadLetters = cfg.PruneDeadLetters
	p.pruneFragments = cfg.PruneFragments
	p.mu.Unlock()

	if p.pruneDeadLetters == nil && p.pruneFragments == nil {
		p.logger.Warn("store cleanup disabled: no prune hooks available")
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("store cleanup plugin initialized")

	p.wg.Add(1)
	go p.cleanupLoop(cleanupCtx)

	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// cleanupLoop runs periodic cleanup passes.
func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.cleanupOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single cleanup pass.
func (p *Plugin) cleanupOnce(ctx context.Context) {
	if p.pruneDeadLetters != nil {
		cutoff := time.Now().Add(-p.deadLetterAge)
		removed, err := p.pruneDeadLetters(ctx, cutoff)
		if err != nil {
			p.logger.Error("store cleanup: dead-letter prune failed")
		} else if removed > 0 {
			p.logger.Info("store cleanup: pruned aged dead letters")
		}
	}

	if p.pruneFragments != nil {
		if dropped := p.pruneFragments(); dropped > 0 {
			p.logger.Debug("store cleanup: dropped expired fragments")
		}
	}
}

// Ensure Plugin implements capture.Plugin.
var _ capture.Plugin = (*Plugin)(nil)
