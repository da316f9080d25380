package app

import (
	"testing"

	"github.com/growthfoundry/leadship/internal/domain"
)

func TestBusFanOutInOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAnalytics(func(e domain.AnalyticsEvent) {
		order = append(order, "first:"+e.Name)
	})
	bus.SubscribeAnalytics(func(e domain.AnalyticsEvent) {
		order = append(order, "second:"+e.Name)
	})

	bus.PublishAnalytics(domain.NewInfoEvent("a", nil))
	bus.PublishAnalytics(domain.NewInfoEvent("b", nil))

	want := []string{"first:a", "second:a", "first:b", "second:b"}
	if len(order) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBusSeparateChannels(t *testing.T) {
	bus := NewBus()

	var transitions, submissions int
	bus.SubscribeTransitions(func(TransitionNotice) { transitions++ })
	bus.SubscribeSubmissions(func(SubmissionNotice) { submissions++ })

	bus.PublishTransition(TransitionNotice{})
	bus.PublishSubmission(SubmissionNotice{})
	bus.PublishSubmission(SubmissionNotice{})

	if transitions != 1 || submissions != 2 {
		t.Fatalf("transitions=%d submissions=%d, want 1 and 2", transitions, submissions)
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	bus.PublishAnalytics(domain.NewInfoEvent("nobody", nil))
	bus.PublishTransition(TransitionNotice{})
	bus.PublishSubmission(SubmissionNotice{})
}
