package domain

import (
	"fmt"
	"time"
)

// Priority classifies how soon a queued submission should be replayed
// relative to others of equal age.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityNormal Priority = "normal"
)

// rank orders priorities for replay scheduling; lower replays first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Before reports whether a record with priority p replays before one with q.
func (p Priority) Before(q Priority) bool {
	return p.rank() < q.rank()
}

// SubmissionStatus is the lifecycle state of a queued submission.
// Transitions are strictly forward: pending -> sending -> {sent | pending},
// with failed reserved for records that exhausted their retry budget.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusSending SubmissionStatus = "sending"
	StatusSent    SubmissionStatus = "sent"
	StatusFailed  SubmissionStatus = "failed"
)

// Lead is a visitor-submitted contact payload.
type Lead struct {
	ID         string            `json:"id,omitempty"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone,omitempty"`
	Message    string            `json:"message"`
	SourcePage string            `json:"sourcePage,omitempty"`
	UTM        map[string]string `json:"utm,omitempty"`
}

// Classify derives the replay priority from payload heuristics. A phone
// number marks a lead as high priority (the visitor asked to be called);
// campaign-attributed leads rank above organic ones.
func (l Lead) Classify() Priority {
	if l.Phone != "" {
		return PriorityHigh
	}
	if l.UTM["utm_campaign"] != "" {
		return PriorityMedium
	}
	return PriorityNormal
}

// SubmissionRecord is a durable queue entry for a lead that could not be
// delivered directly. Once enqueued the record is owned by the retry queue
// and mutated only by its replay loop.
type SubmissionRecord struct {
	ID            string           `json:"id"`
	Payload       Lead             `json:"payload"`
	CreatedAt     time.Time        `json:"created_at"`
	Attempts      int              `json:"attempts"`
	Priority      Priority         `json:"priority"`
	Status        SubmissionStatus `json:"status"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`
	LastError     string           `json:"last_error,omitempty"`
}

// Transition moves the record to a new status, enforcing the forward-only
// invariant. Attempts never decrease; callers increment them separately.
func (r *SubmissionRecord) Transition(to SubmissionStatus) error {
	if !validSubmissionTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

func validSubmissionTransition(from, to SubmissionStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusSending
	case StatusSending:
		return to == StatusSent || to == StatusPending || to == StatusFailed
	default:
		// sent and failed are terminal
		return false
	}
}

// ReplayOrder reports whether record a should be replayed before record b:
// higher priority first, then FIFO by creation time.
func ReplayOrder(a, b *SubmissionRecord) bool {
	if a.Priority != b.Priority {
		return a.Priority.Before(b.Priority)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// DeadLetterList is a bounded diagnostic store for submissions that
// permanently failed. The oldest entry is evicted when the cap is reached.
type DeadLetterList struct {
	Records []SubmissionRecord `json:"records"`
}

// Push appends a record, evicting the oldest entries beyond max.
func (d *DeadLetterList) Push(rec SubmissionRecord, max int) {
	d.Records = append(d.Records, rec)
	if max > 0 && len(d.Records) > max {
		d.Records = d.Records[len(d.Records)-max:]
	}
}

// Len returns the number of dead-lettered records.
func (d *DeadLetterList) Len() int { return len(d.Records) }
