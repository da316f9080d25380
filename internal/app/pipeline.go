package app

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// User-facing copy for non-validation outcomes. Validation errors surface
// per-field; these are the only other messages a visitor ever sees.
const (
	// RetryMessage accompanies a QueuedForRetry outcome.
	RetryMessage = "We couldn't reach our server just now. Your message is saved and we'll keep trying automatically."

	// ExhaustedMessage is surfaced once a record's retry budget is spent.
	ExhaustedMessage = "We were unable to deliver your message. Please contact us directly."
)

// PipelineConfig tunes the submission pipeline.
type PipelineConfig struct {
	Metadata ports.SendMetadata

	// BackoffBase seeds the first retry delay on the queued record.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Pipeline validates and submits lead data. Valid payloads get one direct
// network attempt; failures are handed to the retry queue for guaranteed
// eventual delivery. Validation failures perform no side effects.
type Pipeline struct {
	cfg    PipelineConfig
	queue  *RetryQueue
	sender ports.LeadSender
	bus    *Bus
	logger ports.Logger
	now    func() time.Time
}

// NewPipeline creates a pipeline over the given queue and sender.
func NewPipeline(cfg PipelineConfig, queue *RetryQueue, sender ports.LeadSender, bus *Bus, logger ports.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		queue:  queue,
		sender: sender,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Submit validates and submits a lead.
func (p *Pipeline) Submit(ctx context.Context, lead domain.Lead) domain.Outcome {
	if fieldErrs := ValidateLead(lead); len(fieldErrs) > 0 {
		return domain.Outcome{
			Kind:        domain.Rejected,
			FieldErrors: fieldErrs,
		}
	}

	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}

	// A resubmission whose id is already pending must not create a
	// duplicate record or hit the network again.
	if pending, err := p.queue.Has(ctx, lead.ID); err != nil {
		p.logger.Error("queue lookup failed", ports.String("id", lead.ID), ports.Err(err))
	} else if pending {
		return domain.Outcome{
			Kind:     domain.QueuedForRetry,
			RecordID: lead.ID,
			Message:  RetryMessage,
		}
	}

	sendErr := p.sender.Send(ctx, lead, p.cfg.Metadata)
	if sendErr == nil {
		p.logger.Info("lead submitted", ports.String("id", lead.ID))
		p.bus.PublishAnalytics(domain.NewConversionEvent(EventLeadSubmitted, map[string]string{
			domain.ParamSourcePage: lead.SourcePage,
		}))
		p.bus.PublishSubmission(SubmissionNotice{
			RecordID:    lead.ID,
			Disposition: DispositionSent,
			Attempts:    1,
			At:          p.now(),
		})
		return domain.Outcome{Kind: domain.SentImmediately, RecordID: lead.ID}
	}

	now := p.now()
	rec := domain.SubmissionRecord{
		ID:            lead.ID,
		Payload:       lead,
		CreatedAt:     now,
		Attempts:      1,
		Priority:      lead.Classify(),
		Status:        domain.StatusPending,
		NextAttemptAt: now.Add(Delay(1, p.cfg.BackoffBase, p.cfg.BackoffCap)),
		LastError:     sendErr.Error(),
	}
	if err := p.queue.Enqueue(ctx, rec); err != nil {
		p.logger.Error("enqueue failed", ports.String("id", lead.ID), ports.Err(err))
	}

	p.logger.Warn("direct submission failed, queued for retry",
		ports.String("id", lead.ID),
		ports.String("priority", string(rec.Priority)),
		ports.Err(sendErr),
	)
	p.bus.PublishAnalytics(domain.NewInfoEvent(EventLeadQueued, map[string]string{
		domain.ParamSourcePage: lead.SourcePage,
	}))
	p.bus.PublishSubmission(SubmissionNotice{
		RecordID:    lead.ID,
		Disposition: DispositionQueued,
		Attempts:    1,
		At:          now,
	})
	return domain.Outcome{
		Kind:     domain.QueuedForRetry,
		RecordID: lead.ID,
		Message:  RetryMessage,
	}
}

// ValidateLead checks the required fields and returns field-level errors,
// empty when the lead is valid.
func ValidateLead(lead domain.Lead) map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(lead.FirstName) == "" {
		errs["firstName"] = "first name is required"
	}
	if strings.TrimSpace(lead.LastName) == "" {
		errs["lastName"] = "last name is required"
	}
	if strings.TrimSpace(lead.Message) == "" {
		errs["message"] = "message is required"
	}
	email := strings.TrimSpace(lead.Email)
	if email == "" {
		errs["email"] = "email is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["email"] = "email address is not valid"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
