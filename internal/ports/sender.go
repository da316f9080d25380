package ports

import (
	"context"

	"github.com/growthfoundry/leadship/internal/domain"
)

// LeadSender delivers a lead payload to the configured submission endpoint.
// Implementations handle serialization, HTTP communication, and
// authentication.
type LeadSender interface {
	// Send delivers the lead. A nil return means the endpoint accepted it
	// (2xx). Any other status or a transport error is returned wrapped in
	// domain.ErrNetwork and is retryable.
	Send(ctx context.Context, lead domain.Lead, metadata SendMetadata) error
}

// SendMetadata provides context for the send operation, included as HTTP
// headers for server-side attribution.
type SendMetadata struct {
	// EndpointURL is the submission endpoint.
	EndpointURL string

	// AuthKey is the API authentication key, if the endpoint requires one.
	AuthKey string

	// SiteID identifies the originating site in multi-site deployments.
	SiteID string

	// Hostname identifies the submitting host (the agent, in CLI mode).
	Hostname string
}
