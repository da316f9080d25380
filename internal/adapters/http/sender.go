// Package http provides the outbound HTTP adapters: the lead submission
// sender and the fragment fetcher.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// LeadSender implements ports.LeadSender against the configured submission
// endpoint.
type LeadSender struct {
	client ports.HTTPClient
	logger ports.Logger
}

// NewLeadSender creates a new HTTP lead sender.
func NewLeadSender(client ports.HTTPClient, logger ports.Logger) *LeadSender {
	return &LeadSender{client: client, logger: logger}
}

// Send delivers the lead as a JSON POST. UTM parameters are flattened onto
// the top-level object. Success is any 2xx status; every other status and
// every transport error is a retryable network failure.
func (s *LeadSender) Send(ctx context.Context, lead domain.Lead, metadata ports.SendMetadata) error {
	body := map[string]interface{}{
		"firstName": lead.FirstName,
		"lastName":  lead.LastName,
		"email":     lead.Email,
		"message":   lead.Message,
	}
	if lead.Phone != "" {
		body["phone"] = lead.Phone
	}
	if lead.SourcePage != "" {
		body["sourcePage"] = lead.SourcePage
	}
	for k, v := range lead.UTM {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, metadata.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if metadata.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+metadata.AuthKey)
	}
	if metadata.SiteID != "" {
		req.Header.Set("X-Leadship-Site-Id", metadata.SiteID)
	}
	if metadata.Hostname != "" {
		req.Header.Set("X-Leadship-Hostname", metadata.Hostname)
	}
	if lead.ID != "" {
		req.Header.Set("X-Leadship-Submission-Id", lead.ID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: server returned %d: %s", domain.ErrNetwork, resp.StatusCode, string(respBody))
	}
	return nil
}
