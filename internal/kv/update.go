package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// maxConflictRetries bounds how often a read-modify-write is replayed
// against a racing writer before giving up.
const maxConflictRetries = 8

// Update performs a read-modify-write on key. fn receives the current value
// (nil when the key is absent) and returns the new value; returning nil
// deletes the key. A write that loses a version race is retried against the
// freshest value rather than blindly applied.
func Update(ctx context.Context, store ports.KVStore, key string, fn func(current []byte, exists bool) ([]byte, error)) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		cur, exists, err := store.Get(ctx, key)
		if err != nil {
			return err
		}

		var data []byte
		if exists {
			data = cur.Data
		}
		next, err := fn(data, exists)
		if err != nil {
			return err
		}

		if next == nil {
			if !exists {
				return nil
			}
			err = store.Delete(ctx, key, cur.Version)
		} else {
			err = store.Put(ctx, key, next, cur.Version)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("update %q: %w after %d retries", key, domain.ErrVersionConflict, maxConflictRetries)
}
