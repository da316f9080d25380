package kv

import (
	"context"
	"fmt"
	"testing"

	logadapter "github.com/growthfoundry/leadship/internal/adapters/log"
	"github.com/growthfoundry/leadship/internal/adapters/memory"
	"github.com/growthfoundry/leadship/internal/domain"
)

// quotaStore reports storage exhaustion on every write once tripped.
type quotaStore struct {
	*memory.KVStore
	full bool
}

func (q *quotaStore) Put(ctx context.Context, key string, data []byte, prevVersion int64) error {
	if q.full {
		return fmt.Errorf("put %q: %w", key, domain.ErrStorageQuota)
	}
	return q.KVStore.Put(ctx, key, data, prevVersion)
}

func TestFallbackDegradesOnQuota(t *testing.T) {
	ctx := context.Background()
	primary := &quotaStore{KVStore: memory.NewKVStore()}
	fallback := memory.NewKVStore()
	f := NewFallbackStore(primary, fallback, logadapter.NewNoopLogger())

	if err := f.Put(ctx, "before", []byte("x"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if f.Degraded() {
		t.Fatal("degraded before any quota error")
	}

	primary.full = true
	if err := f.Put(ctx, "after", []byte("y"), 0); err != nil {
		t.Fatalf("degrading put: %v", err)
	}
	if !f.Degraded() {
		t.Fatal("quota error did not degrade the store")
	}

	// The write landed in the fallback.
	if v, exists, _ := fallback.Get(ctx, "after"); !exists || string(v.Data) != "y" {
		t.Fatalf("fallback value = %v, %v", v, exists)
	}

	// All traffic now goes to the fallback, even for keys the primary
	// still holds.
	if _, exists, err := f.Get(ctx, "before"); err != nil || exists {
		t.Fatalf("get after degrade = %v, %v; want absent", exists, err)
	}

	if err := f.Put(ctx, "later", []byte("z"), 0); err != nil {
		t.Fatalf("post-degrade put: %v", err)
	}
	if _, exists, _ := primary.KVStore.Get(ctx, "later"); exists {
		t.Fatal("post-degrade write reached the primary")
	}
}

func TestFallbackPassesThroughOtherErrors(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewKVStore()
	f := NewFallbackStore(primary, memory.NewKVStore(), logadapter.NewNoopLogger())

	if err := f.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	// A version conflict is a caller problem, not a storage problem.
	err := f.Put(ctx, "k", []byte("v2"), 7)
	if err == nil || f.Degraded() {
		t.Fatalf("err = %v, degraded = %v; conflict must pass through", err, f.Degraded())
	}
}
