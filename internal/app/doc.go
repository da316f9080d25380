// Package app wires the lead-capture core: the submission pipeline, the
// durable retry queue, the analytics dispatcher, the exit-intent engine,
// the fragment loader, and the background replay agent. Components
// communicate through the in-process Bus and persist through the
// ports.KVStore abstraction; nothing in this package touches the network
// directly.
package app
