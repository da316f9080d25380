package ports

import "context"

// Versioned is a stored value together with its version stamp. The version
// increases on every successful write and anchors compare-and-swap updates.
type Versioned struct {
	Version int64
	Data    []byte
}

// KVStore is namespaced, versioned key/value persistence. It is the only
// shared mutable resource across components, and potentially across
// processes working against the same backing store.
//
// Writes are compare-and-swap: a Put or Delete whose prevVersion no longer
// matches the stored version fails with domain.ErrVersionConflict, and the
// caller re-reads and retries rather than blindly overwriting. Storage
// exhaustion surfaces as domain.ErrStorageQuota.
type KVStore interface {
	// Get returns the value for key. The second result is false when the
	// key does not exist.
	Get(ctx context.Context, key string) (Versioned, bool, error)

	// Put writes data under key. prevVersion must be the version last
	// read, or 0 when creating the key.
	Put(ctx context.Context, key string, data []byte, prevVersion int64) error

	// Delete removes key. prevVersion semantics match Put; deleting a
	// missing key is not an error.
	Delete(ctx context.Context, key string, prevVersion int64) error

	// List returns all keys with the given prefix, in unspecified order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
