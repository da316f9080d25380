package app

import (
	"sync"
	"time"

	"github.com/growthfoundry/leadship/internal/domain"
)

// TransitionNotice is published on every exit-intent state change.
type TransitionNotice struct {
	From    domain.SessionState
	To      domain.SessionState
	Variant domain.Variant
	At      time.Time
}

// Submission dispositions carried by SubmissionNotice.
const (
	DispositionSent         = "sent"
	DispositionQueued       = "queued"
	DispositionDeadLettered = "dead_lettered"
)

// SubmissionNotice is published when a lead leaves the pipeline or queue:
// sent, queued for retry, or dead-lettered.
type SubmissionNotice struct {
	RecordID    string
	Disposition string
	Attempts    int
	At          time.Time
}

// Bus is a typed publish/subscribe hub decoupling the exit-intent engine,
// the submission pipeline, and the analytics dispatcher from direct
// references to one another. Handlers run synchronously in subscription
// order on the publisher's goroutine.
type Bus struct {
	mu          sync.RWMutex
	analytics   []func(domain.AnalyticsEvent)
	transitions []func(TransitionNotice)
	submissions []func(SubmissionNotice)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeAnalytics registers a handler for analytics events.
func (b *Bus) SubscribeAnalytics(fn func(domain.AnalyticsEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analytics = append(b.analytics, fn)
}

// SubscribeTransitions registers a handler for exit-intent transitions.
func (b *Bus) SubscribeTransitions(fn func(TransitionNotice)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, fn)
}

// SubscribeSubmissions registers a handler for submission notices.
func (b *Bus) SubscribeSubmissions(fn func(SubmissionNotice)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, fn)
}

// PublishAnalytics delivers an analytics event to all subscribers.
func (b *Bus) PublishAnalytics(e domain.AnalyticsEvent) {
	b.mu.RLock()
	handlers := b.analytics
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

// PublishTransition delivers a transition notice to all subscribers.
func (b *Bus) PublishTransition(n TransitionNotice) {
	b.mu.RLock()
	handlers := b.transitions
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

// PublishSubmission delivers a submission notice to all subscribers.
func (b *Bus) PublishSubmission(n SubmissionNotice) {
	b.mu.RLock()
	handlers := b.submissions
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}
