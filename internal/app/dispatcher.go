package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/kv"
	"github.com/growthfoundry/leadship/internal/ports"
)

// DispatcherConfig tunes analytics fan-out.
type DispatcherConfig struct {
	// MaxAttempts bounds redelivery tries for conversion events.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the redelivery schedule, matching
	// the retry queue's policy.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// DedupeWindow suppresses a conversion event re-tracked with the same
	// id within the window (a page restored from cache re-fires its
	// handlers).
	DedupeWindow time.Duration
}

// providerState tracks one provider's readiness and its pre-ready buffer.
type providerState struct {
	provider ports.AnalyticsProvider
	ready    bool
	buffer   []domain.AnalyticsEvent
}

// Dispatcher fans out named events to independently-configured providers.
// Each provider is isolated: a failing or panicking provider never affects
// the others and never throws back to the Track caller. Per-provider
// delivery preserves emission order; conversion events that fail delivery
// are persisted and retried across restarts.
type Dispatcher struct {
	cfg    DispatcherConfig
	store  ports.KVStore
	logger ports.Logger
	now    func() time.Time

	mu        sync.Mutex
	order     []string
	providers map[string]*providerState
	seen      map[string]time.Time
}

// NewDispatcher creates a dispatcher persisting pending conversion events
// through store.
func NewDispatcher(cfg DispatcherConfig, store ports.KVStore, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		now:       time.Now,
		providers: make(map[string]*providerState),
		seen:      make(map[string]time.Time),
	}
}

// Register adds a provider in not-ready state; events targeting it buffer
// until ProviderReady is called with its id.
func (d *Dispatcher) Register(p ports.AnalyticsProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.providers[p.ID()]; dup {
		return
	}
	d.order = append(d.order, p.ID())
	d.providers[p.ID()] = &providerState{provider: p}
}

// ProviderReady marks a provider's client as initialized and flushes its
// buffered events in emission order.
func (d *Dispatcher) ProviderReady(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, ok := d.providers[id]
	if !ok || ps.ready {
		return
	}
	ps.ready = true
	buffered := ps.buffer
	ps.buffer = nil
	for _, e := range buffered {
		d.deliverLocked(ctx, ps, e)
	}
}

// Track fans the event out to its target providers. It never returns an
// error: provider failures are an internal concern and must not interrupt
// the conversion flow.
func (d *Dispatcher) Track(ctx context.Context, event domain.AnalyticsEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if event.Criticality == domain.CriticalityConversion && d.duplicateLocked(event.ID) {
		d.logger.Debug("suppressing duplicate conversion event",
			ports.String("event", event.Name),
			ports.String("id", event.ID),
		)
		return
	}

	for _, id := range d.order {
		ps := d.providers[id]
		if !event.Targeted(id) {
			continue
		}
		if !ps.ready {
			ps.buffer = append(ps.buffer, event)
			continue
		}
		d.deliverLocked(ctx, ps, event)
	}
}

// duplicateLocked records the event id and reports whether it was already
// tracked within the dedupe window. Expired entries are pruned as a side
// effect.
func (d *Dispatcher) duplicateLocked(id string) bool {
	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > d.cfg.DedupeWindow {
			delete(d.seen, k)
		}
	}
	if at, ok := d.seen[id]; ok && now.Sub(at) <= d.cfg.DedupeWindow {
		return true
	}
	d.seen[id] = now
	return false
}

// deliverLocked attempts delivery to one provider, scheduling a durable
// retry for failed conversion events. Informational events are best-effort.
func (d *Dispatcher) deliverLocked(ctx context.Context, ps *providerState, event domain.AnalyticsEvent) {
	err := d.safeDeliver(ctx, ps.provider, event)
	if err == nil {
		return
	}

	d.logger.Warn("provider delivery failed",
		ports.String("provider", ps.provider.ID()),
		ports.String("event", event.Name),
		ports.Err(err),
	)
	if event.Criticality != domain.CriticalityConversion {
		return
	}
	if err := d.persistPending(ctx, event, ps.provider.ID()); err != nil {
		d.logger.Error("failed to persist pending conversion event",
			ports.String("event", event.Name),
			ports.Err(err),
		)
	}
}

// safeDeliver isolates the provider call: a panic inside a provider client
// is converted to a provider error.
func (d *Dispatcher) safeDeliver(ctx context.Context, p ports.AnalyticsProvider, event domain.AnalyticsEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: provider %s panicked: %v", domain.ErrProvider, p.ID(), r)
		}
	}()
	if derr := p.Deliver(ctx, event); derr != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, derr)
	}
	return nil
}

// pendingEvent is the persisted shape of a conversion event still owed to
// one or more providers.
type pendingEvent struct {
	Event         domain.AnalyticsEvent `json:"event"`
	Owed          []string              `json:"owed"`
	Attempts      int                   `json:"attempts"`
	NextAttemptAt time.Time             `json:"next_attempt_at"`
}

func pendingKey(eventID string) string { return analyticsPendingPrefix + eventID }

// persistPending records that providerID is still owed the event, merging
// with an existing pending entry for the same event.
func (d *Dispatcher) persistPending(ctx context.Context, event domain.AnalyticsEvent, providerID string) error {
	return kv.Update(ctx, d.store, pendingKey(event.ID), func(current []byte, exists bool) ([]byte, error) {
		pe := pendingEvent{
			Event:         event,
			NextAttemptAt: d.now().Add(Delay(1, d.cfg.BackoffBase, d.cfg.BackoffCap)),
		}
		if exists {
			var prior pendingEvent
			if ok, _ := kv.Unmarshal(current, &prior, nil); ok {
				pe = prior
			}
		}
		for _, id := range pe.Owed {
			if id == providerID {
				return kv.Marshal(pe)
			}
		}
		pe.Owed = append(pe.Owed, providerID)
		return kv.Marshal(pe)
	})
}

// ReplayPending redelivers persisted conversion events to the providers
// still owed them, honoring the backoff schedule. Events that exhaust the
// redelivery budget are dropped with a warning; analytics never
// dead-letters into the submission diagnostics.
func (d *Dispatcher) ReplayPending(ctx context.Context) error {
	keys, err := d.store.List(ctx, analyticsPendingPrefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	for _, key := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.replayPendingOne(ctx, key)
	}
	return nil
}

func (d *Dispatcher) replayPendingOne(ctx context.Context, key string) {
	raw, exists, err := d.store.Get(ctx, key)
	if err != nil || !exists {
		return
	}
	var pe pendingEvent
	if ok, _ := kv.Unmarshal(raw.Data, &pe, nil); !ok {
		_ = d.store.Delete(ctx, key, raw.Version)
		return
	}
	if d.now().Before(pe.NextAttemptAt) {
		return
	}

	d.mu.Lock()
	var stillOwed []string
	for _, id := range pe.Owed {
		ps, ok := d.providers[id]
		if !ok {
			// Provider no longer configured; the debt is void.
			continue
		}
		if !ps.ready {
			stillOwed = append(stillOwed, id)
			continue
		}
		if err := d.safeDeliver(ctx, ps.provider, pe.Event); err != nil {
			d.logger.Warn("pending event redelivery failed",
				ports.String("provider", id),
				ports.String("event", pe.Event.Name),
				ports.Err(err),
			)
			stillOwed = append(stillOwed, id)
			continue
		}
		pe.Event.MarkDispatched(id)
	}
	d.mu.Unlock()

	pe.Attempts++
	update := func(next func() ([]byte, error)) {
		err := kv.Update(ctx, d.store, key, func(current []byte, exists bool) ([]byte, error) {
			if !exists {
				return nil, nil
			}
			return next()
		})
		if err != nil {
			d.logger.Error("failed to update pending event", ports.String("key", key), ports.Err(err))
		}
	}

	switch {
	case len(stillOwed) == 0:
		update(func() ([]byte, error) { return nil, nil })
	case pe.Attempts >= d.cfg.MaxAttempts:
		d.logger.Warn("dropping conversion event after exhausting redelivery budget",
			ports.String("event", pe.Event.Name),
			ports.Int("attempts", pe.Attempts),
		)
		update(func() ([]byte, error) { return nil, nil })
	default:
		pe.Owed = stillOwed
		pe.NextAttemptAt = d.now().Add(Delay(pe.Attempts, d.cfg.BackoffBase, d.cfg.BackoffCap))
		update(func() ([]byte, error) { return kv.Marshal(pe) })
	}
}

// PendingCount returns the number of persisted conversion events awaiting
// redelivery.
func (d *Dispatcher) PendingCount(ctx context.Context) (int, error) {
	keys, err := d.store.List(ctx, analyticsPendingPrefix)
	return len(keys), err
}
