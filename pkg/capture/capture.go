package capture

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/growthfoundry/leadship/internal/adapters/fs"
	httpAdapter "github.com/growthfoundry/leadship/internal/adapters/http"
	logAdapter "github.com/growthfoundry/leadship/internal/adapters/log"
	"github.com/growthfoundry/leadship/internal/adapters/memory"
	"github.com/growthfoundry/leadship/internal/adapters/sqlite"
	"github.com/growthfoundry/leadship/internal/app"
	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/kv"
	"github.com/growthfoundry/leadship/internal/ports"
)

// Capture is the embeddable lead-capture reliability core: validated
// submission with durable retry, exit-intent recovery, analytics fan-out,
// and cached shared fragments. Use New() to create an instance, then
// Start() to begin background replay.
type Capture struct {
	config Config
	opts   options

	lifecycle  *app.Lifecycle
	bus        *app.Bus
	store      ports.KVStore
	fbStore    *kv.FallbackStore
	queue      *app.RetryQueue
	pipeline   *app.Pipeline
	dispatcher *app.Dispatcher
	engine     *app.ExitIntentEngine
	fragments  *app.FragmentLoader
	agent      *app.Agent
	logger     ports.Logger

	plugins []Plugin

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Capture instance with the given configuration.
// The instance is created in StateStopped; call Start() to begin
// background replay. Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Capture, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	var logger ports.Logger
	if o.logger != nil {
		logger = o.logger
	} else {
		logger = logAdapter.NewNoopLogger()
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	lifecycle := app.NewLifecycle(logger, emitter)
	bus := app.NewBus()

	store, fbStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	metadata := ports.SendMetadata{
		EndpointURL: cfg.EndpointURL,
		AuthKey:     cfg.AuthKey,
		SiteID:      cfg.SiteID,
		Hostname:    cfg.Hostname,
	}
	sender := httpAdapter.NewLeadSender(o.httpClient, logger)

	queue := app.NewRetryQueue(app.QueueConfig{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		DeadLetterCap: cfg.DeadLetterCap,
		Metadata:      metadata,
	}, store, sender, bus, logger)

	pipeline := app.NewPipeline(app.PipelineConfig{
		Metadata:    metadata,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
	}, queue, sender, bus, logger)

	dispatcher := app.NewDispatcher(app.DispatcherConfig{
		MaxAttempts:  cfg.AnalyticsMaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		DedupeWindow: cfg.DedupeWindow,
	}, store, logger)

	// Everything published on the bus flows into the dispatcher; the
	// per-provider buffers hold events until each provider is ready.
	bus.SubscribeAnalytics(func(e domain.AnalyticsEvent) {
		dispatcher.Track(context.Background(), e)
	})

	var fetcher ports.FragmentFetcher
	if cfg.FragmentBaseURL != "" {
		fetcher = httpAdapter.NewFragmentFetcher(o.httpClient, cfg.FragmentBaseURL)
	} else {
		fetcher = unavailableFetcher{}
	}
	fragments := app.NewFragmentLoader(app.FragmentConfig{TTL: cfg.FragmentTTL}, fetcher, logger)

	c := &Capture{
		config:     cfg,
		opts:       o,
		lifecycle:  lifecycle,
		bus:        bus,
		store:      store,
		fbStore:    fbStore,
		queue:      queue,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		fragments:  fragments,
		logger:     logger,
		plugins:    o.plugins,
	}

	show := c.renderOffer
	if o.renderer != nil {
		show = func(ctx context.Context, v domain.Variant) error {
			return o.renderer(ctx, string(v))
		}
	}
	engine, err := app.NewExitIntentEngine(app.ExitIntentConfig{
		Dwell:          cfg.ExitIntentDwell,
		ArmedThreshold: cfg.ArmedThreshold,
		TouchPrimary:   cfg.TouchPrimary,
		Show:           show,
	}, pipeline, bus, store, logger, o.randf)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.engine = engine

	agent := app.NewAgent(app.AgentConfig{
		PollInterval: cfg.PollInterval,
		Once:         cfg.Once,
	}, queue, dispatcher, logger)
	agent.OnReplay = emitter.onReplay
	c.agent = agent

	bus.SubscribeSubmissions(emitter.onSubmission)
	bus.SubscribeTransitions(emitter.onTransition)

	for _, p := range o.providers {
		c.RegisterProvider(p)
	}

	return c, nil
}

// openStore builds the durable store for the configured driver, wrapped so
// storage exhaustion degrades to in-memory operation instead of failing
// submissions.
func openStore(cfg Config, logger ports.Logger) (ports.KVStore, *kv.FallbackStore, error) {
	var primary ports.KVStore
	switch cfg.StoreDriver {
	case DriverFS:
		s, err := fs.NewKVStore(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		primary = s
	case DriverSQLite:
		s, err := sqlite.Open(filepath.Join(cfg.StateDir, "leadship.db"))
		if err != nil {
			return nil, nil, err
		}
		primary = s
	default:
		return memory.NewKVStore(), nil, nil
	}

	fb := kv.NewFallbackStore(primary, memory.NewKVStore(), logger)
	return fb, fb, nil
}

// renderOffer is the default offer renderer: it loads the variant's
// fragment so the markup is in cache when the surface displays it.
func (c *Capture) renderOffer(ctx context.Context, variant domain.Variant) error {
	if _, ok := c.fragments.Load(ctx, "offer-"+string(variant)); !ok {
		return domain.ErrNetwork
	}
	return nil
}

// Start begins background replay and plugin execution.
// Returns immediately after starting the background goroutine.
// Returns an error if already running or if a plugin fails to initialize.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.ctx = runCtx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		EndpointURL:      c.config.EndpointURL,
		StateDir:         c.config.StateDir,
		SiteID:           c.config.SiteID,
		AuthKey:          c.config.AuthKey,
		Logger:           c.logger,
		Kick:             c.agent.Kick,
		PruneDeadLetters: c.queue.PruneDeadLetters,
		PruneFragments:   c.fragments.Prune,
	}
	for _, p := range c.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			c.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			cancel()
			_ = c.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		c.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	c.engine.Start()

	done := c.done
	c.lifecycle.AddWorker()
	go func() {
		defer c.lifecycle.WorkerDone()
		defer close(done)

		if err := c.lifecycle.TransitionTo(app.StateRunning, "replay loop starting"); err != nil {
			c.logger.Error("failed to transition to running", ports.Err(err))
			return
		}

		err := c.agent.Run(runCtx)
		if err != nil && err != context.Canceled {
			c.logger.Error("replay loop error", ports.Err(err))
			_ = c.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	}()

	return nil
}

// Stop gracefully shuts down the instance: the replay loop drains, plugins
// shut down in reverse order, and the store closes. Waits up to 30 seconds
// before forcing shutdown. Returns nil on graceful shutdown,
// ErrShutdownTimeout if forced.
func (c *Capture) Stop() error {
	c.mu.Lock()

	if !c.lifecycle.CanStop() {
		c.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := c.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	err := c.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	c.engine.Close()

	shutdownCtx := context.Background()
	for i := len(c.plugins) - 1; i >= 0; i-- {
		p := c.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			c.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(shutdownErr))
		} else {
			c.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	if closeErr := c.store.Close(); closeErr != nil {
		c.logger.Error("store close failed", ports.Err(closeErr))
	}

	if err != nil {
		_ = c.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = c.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (c *Capture) Status() State {
	return convertState(c.lifecycle.State())
}

// Done returns a channel closed when the replay loop exits: after Stop, a
// crash, or a completed single-sweep run. Returns nil before Start.
func (c *Capture) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Submit validates and submits a lead. Valid leads get one direct network
// attempt; on failure they are durably queued and retried in the
// background. Validation failures return Rejected with per-field errors
// and perform no side effects.
func (c *Capture) Submit(ctx context.Context, lead Lead) Outcome {
	return convertOutcome(c.pipeline.Submit(ctx, convertLead(lead)))
}

// PointerLeaveTop reports the pointer crossing the top viewport boundary,
// the primary abandonment signal for hover-capable sessions.
func (c *Capture) PointerLeaveTop(ctx context.Context) {
	c.engine.PointerLeaveTop(ctx)
}

// ScrollTowardTop reports a rapid upward scroll. It counts as exit intent
// only on touch-primary sessions armed longer than the threshold.
func (c *Capture) ScrollTowardTop(ctx context.Context) {
	c.engine.ScrollTowardTop(ctx)
}

// DismissOffer records the visitor closing the recovery offer. The offer
// will not be shown again this session.
func (c *Capture) DismissOffer() {
	c.engine.Dismiss()
}

// SubmitOffer submits the recovery-offer form through the shared pipeline.
// A lead accepted for delivery converts the session.
func (c *Capture) SubmitOffer(ctx context.Context, lead Lead) Outcome {
	return convertOutcome(c.engine.SubmitOffer(ctx, convertLead(lead)))
}

// SessionVariant returns the session's A/B arm: "control" or "treatment".
func (c *Capture) SessionVariant() string {
	return string(c.engine.Variant())
}

// RegisterProvider adds an analytics provider in not-ready state. Events
// targeting it buffer until ProviderReady is called with its id.
// Register all providers before Start().
func (c *Capture) RegisterProvider(p Provider) {
	c.dispatcher.Register(&providerAdapter{p})
}

// ProviderReady marks a provider's client as initialized and flushes its
// buffered events in emission order.
func (c *Capture) ProviderReady(ctx context.Context, id string) {
	c.dispatcher.ProviderReady(ctx, id)
}

// Track fans an event out to its target providers. It never fails:
// provider errors are contained, and failed conversion events are
// persisted for redelivery.
func (c *Capture) Track(ctx context.Context, event Event) {
	c.dispatcher.Track(ctx, convertEvent(event))
}

// Fragment returns the markup for key: from cache when fresh, refetched
// when stale, falling back to a stale copy or a registered default when
// the fetch fails. ok is false only when nothing can serve the key.
func (c *Capture) Fragment(ctx context.Context, key string) (markup string, ok bool) {
	return c.fragments.Load(ctx, key)
}

// RegisterFragmentDefault installs static fallback markup for key.
func (c *Capture) RegisterFragmentDefault(key, markup string) {
	c.fragments.RegisterDefault(key, markup)
}

// Kick requests an immediate drain of the retry queue, ignoring backoff
// schedules. Call it when connectivity is known to be restored.
func (c *Capture) Kick() {
	c.agent.Kick()
}

// QueueLen returns the number of submissions awaiting retry.
func (c *Capture) QueueLen(ctx context.Context) (int, error) {
	return c.queue.Len(ctx)
}

// DeadLetters returns the submissions that permanently failed, oldest
// first, for diagnostics.
func (c *Capture) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	list, err := c.queue.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, list.Len())
	for _, rec := range list.Records {
		out = append(out, DeadLetter{
			ID:         rec.ID,
			Email:      rec.Payload.Email,
			SourcePage: rec.Payload.SourcePage,
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return out, nil
}

// Degraded reports whether durable storage failed and the instance is
// running on in-memory state for this session.
func (c *Capture) Degraded() bool {
	return c.fbStore != nil && c.fbStore.Degraded()
}

// unavailableFetcher serves instances configured without a fragment base
// URL; only registered defaults can serve.
type unavailableFetcher struct{}

func (unavailableFetcher) Fetch(ctx context.Context, key string) (string, error) {
	return "", domain.ErrNetwork
}

// providerAdapter bridges the public Provider interface to the internal
// dispatcher port.
type providerAdapter struct {
	p Provider
}

func (a *providerAdapter) ID() string { return a.p.ID() }

func (a *providerAdapter) Deliver(ctx context.Context, event domain.AnalyticsEvent) error {
	return a.p.Deliver(ctx, Event{
		ID:         event.ID,
		Name:       event.Name,
		Params:     event.Params,
		Targets:    event.Targets,
		Conversion: event.Criticality == domain.CriticalityConversion,
		CreatedAt:  event.CreatedAt,
	})
}

func convertLead(l Lead) domain.Lead {
	return domain.Lead{
		ID:         l.ID,
		FirstName:  l.FirstName,
		LastName:   l.LastName,
		Email:      l.Email,
		Phone:      l.Phone,
		Message:    l.Message,
		SourcePage: l.SourcePage,
		UTM:        l.UTM,
	}
}

func convertOutcome(o domain.Outcome) Outcome {
	return Outcome{
		Kind:        convertOutcomeKind(o.Kind),
		RecordID:    o.RecordID,
		Message:     o.Message,
		FieldErrors: o.FieldErrors,
	}
}

func convertOutcomeKind(k domain.OutcomeKind) OutcomeKind {
	switch k {
	case domain.SentImmediately:
		return SentImmediately
	case domain.QueuedForRetry:
		return QueuedForRetry
	default:
		return Rejected
	}
}

func convertEvent(e Event) domain.AnalyticsEvent {
	var out domain.AnalyticsEvent
	if e.Conversion {
		out = domain.NewConversionEvent(e.Name, e.Params)
	} else {
		out = domain.NewInfoEvent(e.Name, e.Params)
	}
	if e.ID != "" {
		out.ID = e.ID
	}
	out.Targets = e.Targets
	if !e.CreatedAt.IsZero() {
		out.CreatedAt = e.CreatedAt
	}
	return out
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

// eventEmitterWrapper adapts EventHandler to the internal emitter and bus
// callback shapes.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) onSubmission(n app.SubmissionNotice) {
	if e.handler == nil {
		return
	}
	msg := ""
	if n.Disposition == app.DispositionDeadLettered {
		msg = app.ExhaustedMessage
	}
	e.handler.OnSubmission(SubmissionEvent{
		RecordID:    n.RecordID,
		Disposition: n.Disposition,
		Attempts:    n.Attempts,
		Message:     msg,
		At:          n.At,
	})
}

func (e *eventEmitterWrapper) onTransition(n app.TransitionNotice) {
	if e.handler == nil {
		return
	}
	e.handler.OnExitIntent(ExitIntentEvent{
		From:    n.From.String(),
		To:      n.To.String(),
		Variant: string(n.Variant),
		At:      n.At,
	})
}

func (e *eventEmitterWrapper) onReplay(r app.ReplayResult) {
	if e.handler == nil {
		return
	}
	e.handler.OnReplay(ReplayEvent{
		Sent:         r.Sent,
		DeadLettered: r.DeadLettered,
		Remaining:    r.Remaining,
	})
}
