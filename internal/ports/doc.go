// Package ports defines the interfaces that connect the application layer
// to infrastructure adapters.
//
// Ports are the boundaries between the lead-capture core and the outside
// world: they state what the core needs (durable storage, a submission
// endpoint, analytics providers, fragment sources) without fixing how those
// needs are met.
//
// # Port Interfaces
//
//   - [KVStore]: namespaced, versioned key/value persistence
//   - [LeadSender]: delivers a lead payload to the submission endpoint
//   - [AnalyticsProvider]: one independently-configured analytics sink
//   - [FragmentFetcher]: retrieves reusable markup fragments
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces;
// concrete implementations live in internal/adapters. That keeps component
// logic testable with in-memory fakes and lets storage or transport be
// swapped without touching the queue, pipeline, or dispatcher.
package ports
