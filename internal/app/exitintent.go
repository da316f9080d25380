package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/kv"
	"github.com/growthfoundry/leadship/internal/ports"
)

// ExitIntentConfig tunes abandonment detection for one session.
type ExitIntentConfig struct {
	// Dwell is how long a session must exist before it arms. Signals
	// arriving earlier are ignored.
	Dwell time.Duration

	// ArmedThreshold is the minimum time a session must have been armed
	// before a scroll-toward-top signal counts as exit intent. Pointer
	// signals are not subject to the threshold.
	ArmedThreshold time.Duration

	// TouchPrimary marks sessions whose primary input has no hover
	// capability; only those sessions honor scroll-toward-top signals.
	TouchPrimary bool

	// Show renders the recovery offer for the assigned variant. A nil
	// Show accepts every render.
	Show func(ctx context.Context, variant domain.Variant) error
}

// variantRecord is the persisted shape of a session's A/B assignment.
type variantRecord struct {
	Variant domain.Variant `json:"variant"`
}

// ExitIntentEngine detects abandonment signals for one browsing session
// and drives the recovery offer through its state machine. The offer is
// shown at most once per session; terminal states are absorbing.
type ExitIntentEngine struct {
	cfg      ExitIntentConfig
	pipeline *Pipeline
	bus      *Bus
	store    ports.KVStore
	logger   ports.Logger
	now      func() time.Time
	randf    func() float64

	mu      sync.Mutex
	session domain.ExitIntentSession
	dwell   *time.Timer
}

// NewExitIntentEngine creates an engine with the variant assignment loaded
// from, or newly persisted to, the session store. A session that already
// holds an assignment keeps it; the coin is flipped exactly once.
func NewExitIntentEngine(cfg ExitIntentConfig, pipeline *Pipeline, bus *Bus, store ports.KVStore, logger ports.Logger, randf func() float64) (*ExitIntentEngine, error) {
	e := &ExitIntentEngine{
		cfg:      cfg,
		pipeline: pipeline,
		bus:      bus,
		store:    store,
		logger:   logger,
		now:      time.Now,
		randf:    randf,
	}
	if err := e.assignVariant(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// assignVariant loads a persisted assignment or flips a fair coin and
// persists the result. A concurrent assignment by another session holder
// wins the race and is adopted.
func (e *ExitIntentEngine) assignVariant(ctx context.Context) error {
	for {
		v, exists, err := e.store.Get(ctx, sessionVariantKey)
		if err != nil {
			return err
		}
		if exists {
			var rec variantRecord
			if ok, err := kv.Unmarshal(v.Data, &rec, nil); err != nil {
				return err
			} else if ok {
				e.session.Variant = rec.Variant
				return nil
			}
			// Unreadable assignment: discard and reassign.
			if err := e.store.Delete(ctx, sessionVariantKey, v.Version); err != nil && !errors.Is(err, domain.ErrVersionConflict) {
				return err
			}
			continue
		}

		variant := domain.VariantControl
		if e.randf() >= 0.5 {
			variant = domain.VariantTreatment
		}
		data, err := kv.Marshal(variantRecord{Variant: variant})
		if err != nil {
			return err
		}
		err = e.store.Put(ctx, sessionVariantKey, data, 0)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}
		e.session.Variant = variant
		return nil
	}
}

// Start begins the dwell countdown. The session arms once the dwell
// elapses; until then every signal is ignored.
func (e *ExitIntentEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dwell != nil {
		return
	}
	e.dwell = time.AfterFunc(e.cfg.Dwell, e.arm)
}

func (e *ExitIntentEngine) arm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State != domain.SessionIdle {
		return
	}
	e.session.ArmedAt = e.now()
	e.transitionLocked(domain.SessionArmed)
}

// PointerLeaveTop reports the pointer crossing the top viewport boundary.
// It is the primary abandonment signal for hover-capable sessions.
func (e *ExitIntentEngine) PointerLeaveTop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intentLocked(ctx)
}

// ScrollTowardTop reports a rapid upward scroll. It counts as exit intent
// only for touch-primary sessions that have been armed longer than the
// configured threshold.
func (e *ExitIntentEngine) ScrollTowardTop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.TouchPrimary {
		return
	}
	if e.session.State == domain.SessionArmed && e.now().Sub(e.session.ArmedAt) < e.cfg.ArmedThreshold {
		return
	}
	e.intentLocked(ctx)
}

// intentLocked advances an armed session through Triggered to Shown. A
// render failure leaves the session in Triggered so a later signal can
// retry the render; Shown itself is reached at most once.
func (e *ExitIntentEngine) intentLocked(ctx context.Context) {
	switch e.session.State {
	case domain.SessionArmed:
		e.transitionLocked(domain.SessionTriggered)
	case domain.SessionTriggered:
		// Earlier render failed; retry below.
	default:
		return
	}

	if e.cfg.Show != nil {
		if err := e.cfg.Show(ctx, e.session.Variant); err != nil {
			e.logger.Warn("offer render failed",
				ports.String("variant", string(e.session.Variant)),
				ports.Err(err),
			)
			return
		}
	}
	e.transitionLocked(domain.SessionShown)
}

// Dismiss records the visitor closing the offer. The session is finished;
// no further offer will be shown.
func (e *ExitIntentEngine) Dismiss() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State != domain.SessionShown {
		return
	}
	e.transitionLocked(domain.SessionDismissed)
}

// SubmitOffer submits the offer form through the shared pipeline. A lead
// accepted for delivery, immediately or queued, converts the session;
// a rejection leaves the offer shown for correction.
func (e *ExitIntentEngine) SubmitOffer(ctx context.Context, lead domain.Lead) domain.Outcome {
	e.mu.Lock()
	if e.session.State != domain.SessionShown {
		e.mu.Unlock()
		return domain.Outcome{Kind: domain.Rejected, Message: "no offer is being shown"}
	}
	e.mu.Unlock()

	outcome := e.pipeline.Submit(ctx, lead)
	if outcome.Kind == domain.Rejected {
		return outcome
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State == domain.SessionShown {
		e.transitionLocked(domain.SessionConverted)
	}
	return outcome
}

// State returns the session's current abandonment state.
func (e *ExitIntentEngine) State() domain.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.State
}

// Variant returns the session's A/B assignment.
func (e *ExitIntentEngine) Variant() domain.Variant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Variant
}

// Close cancels the dwell timer. The session state is left as is.
func (e *ExitIntentEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dwell != nil {
		e.dwell.Stop()
		e.dwell = nil
	}
}

func (e *ExitIntentEngine) transitionLocked(to domain.SessionState) {
	from := e.session.State
	if err := e.session.Transition(to); err != nil {
		e.logger.Error("invalid session transition", ports.Err(err))
		return
	}
	e.logger.Debug("session state changed",
		ports.String("from", from.String()),
		ports.String("to", to.String()),
		ports.String("variant", string(e.session.Variant)),
	)
	e.bus.PublishTransition(TransitionNotice{
		From:    from,
		To:      to,
		Variant: e.session.Variant,
		At:      e.now(),
	})
	e.bus.PublishAnalytics(domain.NewInfoEvent(
		eventExitIntentPrefix+strings.ToLower(to.String()),
		map[string]string{domain.ParamVariant: string(e.session.Variant)},
	))
}
