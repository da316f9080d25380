package app

import (
	"context"
	"math/rand"
	"time"
)

// Default backoff configuration values.
const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 30 * time.Second
)

// Delay returns the scheduling delay before attempt n (1-based):
// base * 2^(n-1), capped.
func Delay(n int, base, cap time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// backoff implements exponential backoff with jitter for in-loop waits.
type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// Wait sleeps for the current backoff duration with ±20% jitter, doubling
// it for next time. It returns early when the context ends.
func (b *backoff) Wait(ctx context.Context) error {
	if b.cur <= 0 {
		b.cur = b.base
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	j := 0.8 + 0.4*rand.Float64()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(float64(b.cur) * j)):
		return nil
	}
}

// Reset returns the backoff to its initial duration.
func (b *backoff) Reset() { b.cur = 0 }
