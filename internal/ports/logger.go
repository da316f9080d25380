package ports

import "github.com/growthfoundry/leadship/pkg/log"

// Logger is the structured logging port. It aliases the public pkg/log
// interface so internal packages do not import pkg/log directly.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors re-exported for call-site brevity.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Float64  = log.Float64
	Bool     = log.Bool
	Duration = log.Duration
	Time     = log.Time
	Err      = log.Err
	Any      = log.Any
)
