package app

// Persisted-schema key namespaces. All values are stored through the kv
// envelope and carry a schema version.
const (
	queueKeyPrefix         = "queue:"
	deadLetterKey          = "deadletter"
	analyticsPendingPrefix = "analytics:pending:"
	sessionVariantKey      = "session:variant"
)

// Event names emitted by the core and consumed by external analytics
// collaborators.
const (
	EventLeadSubmitted    = "lead_submitted"
	EventLeadQueued       = "lead_queued"
	EventSubmissionFailed = "submission_failed_permanently"
	eventExitIntentPrefix = "exit_intent_"
)
