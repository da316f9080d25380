package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors for the lead-capture core. These are returned by the public
// API and can be checked with errors.Is.
var (
	// ErrValidation is returned when a lead payload fails validation.
	// The concrete error is a *ValidationError carrying field detail.
	ErrValidation = errors.New("leadship: invalid lead")

	// ErrNetwork marks a retryable submission or delivery failure.
	ErrNetwork = errors.New("leadship: network failure")

	// ErrProvider marks an analytics-provider delivery failure. It is
	// logged internally and never surfaced to the visitor.
	ErrProvider = errors.New("leadship: provider failure")

	// ErrStorageQuota is returned when persisted storage is unavailable or
	// full; the core degrades to in-memory operation for the session.
	ErrStorageQuota = errors.New("leadship: storage unavailable")

	// ErrVersionConflict is returned by a compare-and-swap write that lost
	// a race; the caller retries against the freshest value.
	ErrVersionConflict = errors.New("leadship: stale version")

	// ErrInvalidTransition is returned for a state change that would move
	// a record or session backward.
	ErrInvalidTransition = errors.New("leadship: invalid transition")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("leadship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("leadship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("leadship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("leadship: invalid configuration")
)

// ValidationError carries field-level validation failures. The visitor can
// fix these; no side effects are performed when one is returned.
type ValidationError struct {
	Fields map[string]string
}

// Error returns a stable, field-sorted description.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return ErrValidation.Error() + " (" + strings.Join(parts, "; ") + ")"
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }
