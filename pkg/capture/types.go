package capture

import (
	"context"
	"time"
)

// Lead is a captured contact-form payload.
type Lead struct {
	// ID identifies the submission across retries. Leave empty to have
	// one assigned.
	ID string

	FirstName string
	LastName  string
	Email     string
	Phone     string
	Message   string

	// SourcePage is the page path the lead was captured on.
	SourcePage string

	// UTM holds campaign attribution parameters, keyed by their
	// canonical names (utm_source, utm_campaign, ...).
	UTM map[string]string
}

// OutcomeKind is the result class of a submission attempt.
type OutcomeKind int

const (
	// SentImmediately means the direct network submission succeeded.
	SentImmediately OutcomeKind = iota

	// QueuedForRetry means the direct attempt failed and the lead was
	// durably queued; delivery will be retried automatically.
	QueuedForRetry

	// Rejected means the payload failed validation and nothing was sent
	// or queued.
	Rejected
)

// String returns a human-readable representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case SentImmediately:
		return "SentImmediately"
	case QueuedForRetry:
		return "QueuedForRetry"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Outcome is the result of submitting a lead.
type Outcome struct {
	Kind     OutcomeKind
	RecordID string

	// Message is user-facing copy for non-validation outcomes.
	Message string

	// FieldErrors maps field names to validation messages. Populated
	// only for Rejected outcomes.
	FieldErrors map[string]string
}

// Event is a named analytics event fanned out to registered providers.
type Event struct {
	// ID deduplicates conversion events. Leave empty to have one
	// assigned.
	ID string

	Name   string
	Params map[string]string

	// Targets limits delivery to the named providers. Empty means all.
	Targets []string

	// Conversion marks the event as conversion-critical: failed
	// deliveries are persisted and retried instead of dropped.
	Conversion bool

	CreatedAt time.Time
}

// Provider delivers analytics events to one external collector.
type Provider interface {
	// ID returns the provider identifier used in Event.Targets.
	ID() string

	// Deliver sends one event. Errors and panics are contained by the
	// dispatcher; conversion events are redelivered later.
	Deliver(ctx context.Context, event Event) error
}

// DeadLetter describes a submission that permanently failed.
type DeadLetter struct {
	ID         string
	Email      string
	SourcePage string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}
