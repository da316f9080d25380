package kv

import (
	"context"
	"errors"
	"sync"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// FallbackStore wraps a primary store and degrades to a secondary
// (in-memory) store when the primary reports storage exhaustion. The
// degrade happens at most once per session and is logged as a single
// non-blocking warning; it is never surfaced to the visitor.
type FallbackStore struct {
	mu       sync.RWMutex
	primary  ports.KVStore
	fallback ports.KVStore
	logger   ports.Logger
	degraded bool
}

// NewFallbackStore creates a store that degrades from primary to fallback
// on domain.ErrStorageQuota.
func NewFallbackStore(primary, fallback ports.KVStore, logger ports.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback, logger: logger}
}

// Degraded reports whether the session has fallen back to in-memory
// operation.
func (f *FallbackStore) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *FallbackStore) active() ports.KVStore {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.degraded {
		return f.fallback
	}
	return f.primary
}

// degrade switches to the fallback store for the rest of the session.
func (f *FallbackStore) degrade(err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()

	if !already {
		f.logger.Warn("persistent storage unavailable, continuing in-memory for this session",
			ports.Err(err))
	}
}

// Get returns the value for key from the active store.
func (f *FallbackStore) Get(ctx context.Context, key string) (ports.Versioned, bool, error) {
	v, ok, err := f.active().Get(ctx, key)
	if errors.Is(err, domain.ErrStorageQuota) {
		f.degrade(err)
		return f.fallback.Get(ctx, key)
	}
	return v, ok, err
}

// Put writes through the active store, degrading on quota exhaustion.
func (f *FallbackStore) Put(ctx context.Context, key string, data []byte, prevVersion int64) error {
	err := f.active().Put(ctx, key, data, prevVersion)
	if errors.Is(err, domain.ErrStorageQuota) {
		f.degrade(err)
		// A fresh fallback store has no prior version for this key.
		return f.fallback.Put(ctx, key, data, 0)
	}
	return err
}

// Delete removes key from the active store.
func (f *FallbackStore) Delete(ctx context.Context, key string, prevVersion int64) error {
	err := f.active().Delete(ctx, key, prevVersion)
	if errors.Is(err, domain.ErrStorageQuota) {
		f.degrade(err)
		return f.fallback.Delete(ctx, key, 0)
	}
	return err
}

// List returns keys with the prefix from the active store.
func (f *FallbackStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := f.active().List(ctx, prefix)
	if errors.Is(err, domain.ErrStorageQuota) {
		f.degrade(err)
		return f.fallback.List(ctx, prefix)
	}
	return keys, err
}

// Close closes both underlying stores.
func (f *FallbackStore) Close() error {
	perr := f.primary.Close()
	ferr := f.fallback.Close()
	if perr != nil {
		return perr
	}
	return ferr
}
