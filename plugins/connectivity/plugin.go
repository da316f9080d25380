// Package connectivity provides endpoint reachability probing for capture.
// When enabled, it periodically probes the submission endpoint and kicks
// the replay loop the moment connectivity returns, so queued leads drain
// without waiting out their backoff schedules.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/growthfoundry/leadship/pkg/capture"
)

// Plugin implements connectivity probing.
// It issues a lightweight request against the submission endpoint on an
// interval and reports offline-to-online transitions to the replay loop.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	probeInterval time.Duration

	// Runtime state
	endpointURL string
	logger      capture.Logger
	kick        func()
	httpClient  *http.Client
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	online      bool
}

// Config holds configuration options for the connectivity plugin.
type Config struct {
	// ProbeInterval is how often to probe the endpoint.
	// Default: 15 seconds
	ProbeInterval time.Duration

	// HTTPTimeout is the timeout for probe requests.
	// Default: 5 seconds
	HTTPTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 15 * time.Second,
		HTTPTimeout:   5 * time.Second,
	}
}

// New creates a new connectivity plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}

	return &Plugin{
		probeInterval: cfg.ProbeInterval,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		// Assume online until a probe says otherwise, so startup does not
		// trigger a spurious kick.
		online: true,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "connectivity"
}

// Initialize sets up the plugin and starts the probe loop.
func (p *Plugin) Initialize(ctx context.Context, cfg capture.PluginConfig) error {
	p.mu.Lock()
	p.endpointURL = cfg.EndpointURL
	p.logger = cfg.Logger
	p.kick = cfg.Kick
	p.mu.Unlock()

	if p.endpointURL == "" || p.kick == nil {
		p.logger.Warn("connectivity probing disabled: no endpoint configured")
		return nil
	}

	probeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("connectivity plugin initialized")

	p.wg.Add(1)
	go p.probeLoop(probeCtx)

	return nil
}

// Shutdown stops the probe loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// probeLoop probes the endpoint on the configured interval.
func (p *Plugin) probeLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

// probeOnce checks reachability and kicks the replay loop on an
// offline-to-online transition.
func (p *Plugin) probeOnce(ctx context.Context) {
	p.mu.RLock()
	endpoint := p.endpointURL
	p.mu.RUnlock()

	reachable := p.probe(ctx, endpoint)

	p.mu.Lock()
	wasOnline := p.online
	p.online = reachable
	p.mu.Unlock()

	switch {
	case reachable && !wasOnline:
		p.logger.Info("connectivity restored, draining retry queue")
		p.kick()
	case !reachable && wasOnline:
		p.logger.Warn("submission endpoint unreachable")
	}
}

// probe reports whether the endpoint currently answers at all. Any HTTP
// status counts as reachable; only transport failures mean offline.
func (p *Plugin) probe(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Online reports the result of the most recent probe.
func (p *Plugin) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Ensure Plugin implements capture.Plugin.
var _ capture.Plugin = (*Plugin)(nil)
