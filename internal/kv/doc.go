// Package kv layers persistence policy on top of the raw ports.KVStore
// interface: a versioned schema envelope with migrate-or-discard loading,
// a compare-and-swap read-modify-write helper, and a fallback wrapper that
// degrades to in-memory operation when persistent storage is exhausted.
package kv
