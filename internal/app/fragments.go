package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// FragmentConfig tunes shared markup loading.
type FragmentConfig struct {
	// TTL is how long a fetched fragment is served from cache before the
	// next Load refetches it.
	TTL time.Duration
}

// FragmentLoader fetches shared markup fragments, caches them for a TTL,
// and collapses concurrent fetches for the same key into one request.
// A fetch failure falls back to a registered static default so dependent
// surfaces always render something.
type FragmentLoader struct {
	cfg     FragmentConfig
	fetcher ports.FragmentFetcher
	logger  ports.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	cache    map[string]domain.CachedFragment
	defaults map[string]string
}

// NewFragmentLoader creates a loader with an empty cache.
func NewFragmentLoader(cfg FragmentConfig, fetcher ports.FragmentFetcher, logger ports.Logger) *FragmentLoader {
	return &FragmentLoader{
		cfg:      cfg,
		fetcher:  fetcher,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]domain.CachedFragment),
		defaults: make(map[string]string),
	}
}

// RegisterDefault installs static fallback markup served when a fetch for
// key fails and no cached copy exists.
func (l *FragmentLoader) RegisterDefault(key, markup string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaults[key] = markup
}

// Load returns the markup for key, from cache when fresh. On a fetch
// failure a stale cached copy is preferred over the static default; the
// default is the last resort. ok is false only when neither a fetched,
// cached, nor default copy exists.
func (l *FragmentLoader) Load(ctx context.Context, key string) (markup string, ok bool) {
	l.mu.Lock()
	if frag, hit := l.cache[key]; hit && !frag.Expired(l.now()) {
		l.mu.Unlock()
		return frag.Markup, true
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		body, err := l.fetcher.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		frag := domain.CachedFragment{
			Key:       key,
			Markup:    body,
			FetchedAt: l.now(),
			TTL:       l.cfg.TTL,
		}
		l.mu.Lock()
		l.cache[key] = frag
		l.mu.Unlock()
		return body, nil
	})
	if err == nil {
		return v.(string), true
	}

	l.logger.Warn("fragment fetch failed",
		ports.String("key", key),
		ports.Err(err),
	)
	l.mu.Lock()
	defer l.mu.Unlock()
	if frag, hit := l.cache[key]; hit {
		return frag.Markup, true
	}
	if def, hit := l.defaults[key]; hit {
		return def, true
	}
	return "", false
}

// Invalidate drops any cached copy of key so the next Load refetches.
func (l *FragmentLoader) Invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, key)
}

// Prune evicts every expired cache entry and returns the eviction count.
func (l *FragmentLoader) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for key, frag := range l.cache {
		if frag.Expired(now) {
			delete(l.cache, key)
			n++
		}
	}
	return n
}

// Len returns the number of cached fragments, fresh or stale.
func (l *FragmentLoader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}
