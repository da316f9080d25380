package app

import (
	"context"
	"time"

	"github.com/growthfoundry/leadship/internal/ports"
)

// AgentConfig tunes the background replay loop.
type AgentConfig struct {
	// PollInterval is how often the agent sweeps the queue and the
	// pending analytics events between kicks.
	PollInterval time.Duration

	// Once makes Run perform a single sweep and return instead of
	// looping. Used for one-shot replay from the command line.
	Once bool
}

// Agent drives delivery recovery in the background: it replays the
// durable submission queue and redelivers pending conversion events, on
// an interval and on demand. A kick, typically from a connectivity probe,
// drains the queue immediately, ignoring the backoff schedule.
type Agent struct {
	cfg        AgentConfig
	queue      *RetryQueue
	dispatcher *Dispatcher
	logger     ports.Logger

	kick chan struct{}

	// OnReplay, when set, observes the result of every queue sweep.
	OnReplay func(ReplayResult)
}

// NewAgent creates a replay agent over the queue and dispatcher.
func NewAgent(cfg AgentConfig, queue *RetryQueue, dispatcher *Dispatcher, logger ports.Logger) *Agent {
	return &Agent{
		cfg:        cfg,
		queue:      queue,
		dispatcher: dispatcher,
		logger:     logger,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests an immediate drain of the queue. It never blocks; a kick
// arriving while one is already pending is coalesced.
func (a *Agent) Kick() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run performs the initial sweep and then loops until ctx is canceled,
// sweeping on the poll interval and draining on kicks. In Once mode it
// returns after the initial sweep.
func (a *Agent) Run(ctx context.Context) error {
	a.sweep(ctx, false)
	if a.cfg.Once {
		return ctx.Err()
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx, false)
		case <-a.kick:
			a.logger.Info("connectivity kick, draining queue")
			a.sweep(ctx, true)
		}
	}
}

// sweep replays the queue, draining when requested, then redelivers
// pending analytics events. Errors are logged, not returned; the loop
// must survive transient storage failures.
func (a *Agent) sweep(ctx context.Context, drain bool) {
	var (
		res ReplayResult
		err error
	)
	if drain {
		res, err = a.queue.Drain(ctx)
	} else {
		res, err = a.queue.ReplayAll(ctx)
	}
	if err != nil {
		a.logger.Error("queue replay failed", ports.Err(err))
	} else {
		if res.Sent > 0 || res.DeadLettered > 0 {
			a.logger.Info("queue replay finished",
				ports.Int("sent", res.Sent),
				ports.Int("dead_lettered", res.DeadLettered),
				ports.Int("remaining", res.Remaining),
			)
		}
		if a.OnReplay != nil {
			a.OnReplay(res)
		}
	}

	if err := a.dispatcher.ReplayPending(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("pending analytics replay failed", ports.Err(err))
	}
}
