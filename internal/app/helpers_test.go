package app

import (
	"context"
	"fmt"
	"sync"

	logadapter "github.com/growthfoundry/leadship/internal/adapters/log"
	"github.com/growthfoundry/leadship/internal/adapters/memory"
	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// fakeSender fails the first failures sends with a network error and
// succeeds afterwards, recording every lead it accepted.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []domain.Lead
}

func (s *fakeSender) Send(ctx context.Context, lead domain.Lead, meta ports.SendMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("%w: connection refused", domain.ErrNetwork)
	}
	s.sent = append(s.sent, lead)
	return nil
}

func (s *fakeSender) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.sent))
	for i, l := range s.sent {
		ids[i] = l.ID
	}
	return ids
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeProvider records deliveries and optionally fails or panics.
type fakeProvider struct {
	id    string
	fail  bool
	panic bool

	mu        sync.Mutex
	delivered []domain.AnalyticsEvent
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Deliver(ctx context.Context, event domain.AnalyticsEvent) error {
	if p.panic {
		panic("provider client exploded")
	}
	if p.fail {
		return fmt.Errorf("upstream rejected event %s", event.Name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, event)
	return nil
}

func (p *fakeProvider) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.delivered))
	for i, e := range p.delivered {
		out[i] = e.Name
	}
	return out
}

func newTestQueue(sender ports.LeadSender, bus *Bus) (*RetryQueue, *memory.KVStore) {
	store := memory.NewKVStore()
	q := NewRetryQueue(QueueConfig{
		MaxAttempts:   3,
		BackoffBase:   DefaultBackoffBase,
		BackoffCap:    DefaultBackoffCap,
		DeadLetterCap: 5,
	}, store, sender, bus, logadapter.NewNoopLogger())
	return q, store
}

func validLead(id string) domain.Lead {
	return domain.Lead{
		ID:         id,
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Message:    "Please send pricing.",
		SourcePage: "/pricing",
	}
}
