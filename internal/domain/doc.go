// Package domain holds the core entities of the lead-capture reliability
// layer: leads and their durable submission records, exit-intent sessions,
// analytics events, cached fragments, and the error taxonomy.
//
// The package has no dependencies on infrastructure; invariants that belong
// to the data itself (forward-only status transitions, the at-most-once
// Shown flag, dead-letter bounding) are enforced here.
package domain
