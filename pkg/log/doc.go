// Package log provides the structured logging abstraction used throughout
// the lead-capture core.
//
// The [Logger] interface decouples the core from any concrete logging
// library. [ZerologAdapter] is the production implementation; [NoopLogger]
// is used by default when the core is embedded, so library consumers opt in
// to output rather than having to silence it.
package log
