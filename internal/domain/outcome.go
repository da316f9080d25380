package domain

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

// Outcome is the result of submitting a lead through the pipeline.
type Outcome struct {
	Kind     OutcomeKind
	RecordID string

	// Message is user-facing copy: a retry notice for QueuedForRetry, or
	// the exhausted-budget fallback text.
	Message string

	// FieldErrors is populated only for Rejected outcomes.
	FieldErrors map[string]string
}
