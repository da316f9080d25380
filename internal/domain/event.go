package domain

import (
	"time"

	"github.com/google/uuid"
)

// Criticality determines an analytics event's delivery guarantee.
// Conversion events are persisted and retried; informational events are
// best-effort and discarded on failure.
type Criticality string

const (
	CriticalityConversion    Criticality = "conversion"
	CriticalityInformational Criticality = "informational"
)

// Fixed parameter keys for emitted events, consumed by external analytics
// collaborators.
const (
	ParamEventName  = "event_name"
	ParamValue      = "value"
	ParamCurrency   = "currency"
	ParamVariant    = "variant"
	ParamSourcePage = "source_page"
)

// AnalyticsEvent is a named event fanned out to one or more providers.
type AnalyticsEvent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Params       map[string]string `json:"params,omitempty"`
	Targets      []string          `json:"targets,omitempty"`
	DispatchedTo []string          `json:"dispatched_to,omitempty"`
	Criticality  Criticality       `json:"criticality"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewConversionEvent creates a conversion-criticality event. An empty
// targets slice means every configured provider.
func NewConversionEvent(name string, params map[string]string) AnalyticsEvent {
	return newEvent(name, params, CriticalityConversion)
}

// NewInfoEvent creates an informational, fire-and-forget event.
func NewInfoEvent(name string, params map[string]string) AnalyticsEvent {
	return newEvent(name, params, CriticalityInformational)
}

func newEvent(name string, params map[string]string, c Criticality) AnalyticsEvent {
	return AnalyticsEvent{
		ID:          uuid.NewString(),
		Name:        name,
		Params:      params,
		Criticality: c,
		CreatedAt:   time.Now().UTC(),
	}
}

// Targeted reports whether the event should be delivered to the provider.
func (e *AnalyticsEvent) Targeted(providerID string) bool {
	if len(e.Targets) == 0 {
		return true
	}
	for _, t := range e.Targets {
		if t == providerID {
			return true
		}
	}
	return false
}

// MarkDispatched records a confirmed delivery to the provider.
func (e *AnalyticsEvent) MarkDispatched(providerID string) {
	for _, p := range e.DispatchedTo {
		if p == providerID {
			return
		}
	}
	e.DispatchedTo = append(e.DispatchedTo, providerID)
}

// Dispatched reports whether delivery to the provider was already confirmed.
func (e *AnalyticsEvent) Dispatched(providerID string) bool {
	for _, p := range e.DispatchedTo {
		if p == providerID {
			return true
		}
	}
	return false
}
