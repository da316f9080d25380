// Package fs provides a file-backed ports.KVStore: one JSON file per key,
// written atomically (temp file then rename) with a version stamp for
// compare-and-swap updates.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

const fileSuffix = ".json"

// fileRecord is the on-disk shape: a version stamp plus the opaque value.
type fileRecord struct {
	Version int64  `json:"version"`
	Data    []byte `json:"data"`
}

// KVStore implements ports.KVStore on a directory of per-key JSON files.
// A process-wide mutex serializes the read-compare-rename sequence; across
// processes the atomic rename plus the version stamp detect lost updates on
// the next read-modify-write.
type KVStore struct {
	mu  sync.Mutex
	dir string
}

// NewKVStore creates a store rooted at dir, creating it if needed.
func NewKVStore(dir string) (*KVStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("state dir: %w", mapQuota(err))
	}
	return &KVStore{dir: dir}, nil
}

// path maps a key to its file, escaping namespace separators.
func (s *KVStore) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+fileSuffix)
}

// Get returns the value for key.
func (s *KVStore) Get(ctx context.Context, key string) (ports.Versioned, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *KVStore) read(key string) (ports.Versioned, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ports.Versioned{}, false, nil
		}
		return ports.Versioned{}, false, mapQuota(err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A torn or foreign file reads as absent; the envelope layer
		// already treats undecodable values as discarded.
		return ports.Versioned{}, false, nil
	}
	return ports.Versioned{Version: rec.Version, Data: rec.Data}, true, nil
}

// Put writes data under key if prevVersion matches the stored version.
// The write is atomic: temp file in the same directory, then rename.
func (s *KVStore) Put(ctx context.Context, key string, data []byte, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists, err := s.read(key)
	if err != nil {
		return err
	}
	switch {
	case !exists && prevVersion != 0:
		return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
	case exists && cur.Version != prevVersion:
		return fmt.Errorf("put %q: %w", key, domain.ErrVersionConflict)
	}

	rec := fileRecord{Version: cur.Version + 1, Data: data}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return mapQuota(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return mapQuota(err)
	}
	return nil
}

// Delete removes key if prevVersion matches. Deleting a missing key is a
// no-op.
func (s *KVStore) Delete(ctx context.Context, key string, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists, err := s.read(key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if cur.Version != prevVersion {
		return fmt.Errorf("delete %q: %w", key, domain.ErrVersionConflict)
	}
	return os.Remove(s.path(key))
}

// List returns all keys with the given prefix.
func (s *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, mapQuota(err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op for the file store.
func (s *KVStore) Close() error { return nil }

// mapQuota converts disk-exhaustion errors to the domain quota error so the
// fallback store can degrade to in-memory operation.
func mapQuota(err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuota, err)
	}
	return err
}
