// Package memory provides a map-backed ports.KVStore. It backs isolated
// test instances and is the degrade target when persistent storage is
// unavailable for the session.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

type entry struct {
	version int64
	data    []byte
}

// KVStore is an in-memory ports.KVStore with compare-and-swap semantics.
// Safe for concurrent use.
type KVStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewKVStore creates an empty in-memory store.
func NewKVStore() *KVStore {
	return &KVStore{entries: make(map[string]entry)}
}

// Get returns the value for key.
func (s *KVStore) Get(ctx context.Context, key string) (ports.Versioned, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return ports.Versioned{}, false, nil
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return ports.Versioned{Version: e.version, Data: data}, true, nil
}

// Put writes data under key if prevVersion matches the stored version.
func (s *KVStore) Put(ctx context.Context, key string, data []byte, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	switch {
	case !ok && prevVersion != 0:
		return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
	case ok && cur.version != prevVersion:
		return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.entries[key] = entry{version: cur.version + 1, data: stored}
	return nil
}

// Delete removes key if prevVersion matches. Deleting a missing key is a
// no-op.
func (s *KVStore) Delete(ctx context.Context, key string, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	if !ok {
		return nil
	}
	if cur.version != prevVersion {
		return fmt.Errorf("delete %q: %w", key, domain.ErrVersionConflict)
	}
	delete(s.entries, key)
	return nil
}

// List returns all keys with the given prefix.
func (s *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *KVStore) Close() error { return nil }
