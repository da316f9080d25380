package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/growthfoundry/leadship/pkg/capture"
)

// logProvider is the CLI stand-in for an analytics provider client: it
// writes every delivered event to the log.
type logProvider struct {
	id  string
	log zerolog.Logger
}

func (p *logProvider) ID() string { return p.id }

func (p *logProvider) Deliver(ctx context.Context, e capture.Event) error {
	p.log.Info().
		Str("provider", p.id).
		Str("event", e.Name).
		Bool("conversion", e.Conversion).
		Fields(map[string]interface{}{"params": e.Params}).
		Msg("analytics event")
	return nil
}
