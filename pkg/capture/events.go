package capture

import "time"

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SubmissionEvent is emitted when a lead leaves the pipeline or the retry
// queue: delivered, queued for retry, or permanently failed.
type SubmissionEvent struct {
	// RecordID identifies the submission across retries.
	RecordID string

	// Disposition is "sent", "queued", or "dead_lettered".
	Disposition string

	// Attempts is the total number of delivery tries so far.
	Attempts int

	// Message is user-facing copy for the dead_lettered disposition;
	// empty otherwise.
	Message string

	At time.Time
}

// ReplayEvent summarizes one background replay sweep of the retry queue.
type ReplayEvent struct {
	Sent         int
	DeadLettered int
	Remaining    int
}

// ExitIntentEvent is emitted on every abandonment-detection transition.
type ExitIntentEvent struct {
	From    string
	To      string
	Variant string
	At      time.Time
}

// EventHandler receives capture events. All methods are called
// synchronously from internal goroutines; implementations must not block.
type EventHandler interface {
	// OnStateChange is called on every lifecycle transition.
	OnStateChange(event StateChangeEvent)

	// OnSubmission is called when a lead is delivered, queued, or
	// permanently failed.
	OnSubmission(event SubmissionEvent)

	// OnReplay is called after every background replay sweep.
	OnReplay(event ReplayEvent)

	// OnExitIntent is called on every abandonment-detection transition.
	OnExitIntent(event ExitIntentEvent)
}

// BaseEventHandler provides no-op implementations of all EventHandler
// methods. Embed it to implement only the events you care about.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnSubmission(SubmissionEvent)   {}
func (BaseEventHandler) OnReplay(ReplayEvent)           {}
func (BaseEventHandler) OnExitIntent(ExitIntentEvent)   {}
