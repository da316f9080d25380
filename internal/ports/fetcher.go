package ports

import "context"

// FragmentFetcher retrieves a reusable markup fragment by key from its
// canonical source.
type FragmentFetcher interface {
	// Fetch returns the fragment markup. Failures are retryable from the
	// loader's point of view; the loader falls back to a static default.
	Fetch(ctx context.Context, key string) (string, error)
}
