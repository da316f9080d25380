package domain

import "time"

// CachedFragment is a reusable piece of markup fetched once and reused
// until its TTL elapses.
type CachedFragment struct {
	Key       string        `json:"key"`
	Markup    string        `json:"markup"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the fragment is stale at the given instant.
func (f CachedFragment) Expired(now time.Time) bool {
	return now.Sub(f.FetchedAt) > f.TTL
}
