package ports

import (
	"context"

	"github.com/growthfoundry/leadship/internal/domain"
)

// AnalyticsProvider is one independently-configured analytics sink.
// Providers are isolated from each other: a failing or panicking provider
// must not affect delivery to the others, and the dispatcher guarantees
// per-provider emission order.
type AnalyticsProvider interface {
	// ID returns the provider's stable identifier, matched against event
	// target sets and configuration.
	ID() string

	// Deliver sends one event. An error marks the delivery failed; the
	// dispatcher decides whether to retry based on event criticality.
	Deliver(ctx context.Context, event domain.AnalyticsEvent) error
}
