// Package configwatcher provides config file monitoring for capture.
// When enabled, it watches the leadship config file for changes and
// notifies the application so updated settings can be applied.
package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/growthfoundry/leadship/pkg/capture"
)

// Plugin implements config file watching.
// It monitors the config file's directory (watching the directory rather
// than the file survives the rename-over-write pattern editors and
// deploy tooling use) and runs the change hook after a debounce delay.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	path          string
	debounceDelay time.Duration
	onChange      func(ctx context.Context)

	// Runtime state
	logger   capture.Logger
	kick     func()
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the config file to watch.
	// Default: ~/.leadship/config.toml
	Path string

	// DebounceDelay is the delay to wait after a file change before
	// running the change hook.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnChange is invoked after a debounced change. When nil, the plugin
	// only logs the change and kicks the replay loop.
	OnChange func(ctx context.Context)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Path = filepath.Join(home, ".leadship", "config.toml")
		}
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		onChange:      cfg.OnChange,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize sets up the plugin and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg capture.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.kick = cfg.Kick
	p.mu.Unlock()

	if p.path == "" {
		p.logger.Warn("config watcher disabled: no config path available")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized")

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// watchLoop watches for config file changes.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("config watcher: failed to create watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		p.logger.Error("config watcher: failed to watch config directory")
		return
	}

	target := filepath.Base(p.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceChange(ctx)

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error")
		}
	}
}

// debounceChange coalesces a burst of file events into one hook run.
func (p *Plugin) debounceChange(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.handleChange(ctx)
	})
}

// handleChange runs once per debounced change.
func (p *Plugin) handleChange(ctx context.Context) {
	p.logger.Info("config watcher: config file changed")

	if p.onChange != nil {
		p.onChange(ctx)
	}
	if p.kick != nil {
		// Connectivity or endpoint settings may have changed; re-evaluate
		// the retry queue immediately rather than on the next sweep.
		p.kick()
	}
}

// Ensure Plugin implements capture.Plugin.
var _ capture.Plugin = (*Plugin)(nil)
