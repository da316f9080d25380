package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/growthfoundry/leadship/internal/domain"
)

func newStore(t *testing.T) *KVStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, exists, err := s.Get(ctx, "k"); err != nil || exists {
		t.Fatalf("get empty = %v, %v", exists, err)
	}

	if err := s.Put(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, exists, err := s.Get(ctx, "k")
	if err != nil || !exists || string(v.Data) != "v1" || v.Version != 1 {
		t.Fatalf("get = %q v%d, %v, %v", v.Data, v.Version, exists, err)
	}

	if err := s.Put(ctx, "k", []byte("v2"), 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	v, _, _ = s.Get(ctx, "k")
	if string(v.Data) != "v2" || v.Version != 2 {
		t.Fatalf("get = %q v%d", v.Data, v.Version)
	}
}

func TestSQLiteVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Put(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte("b"), 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("duplicate create = %v, want conflict", err)
	}
	if err := s.Put(ctx, "k", []byte("b"), 5); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale update = %v, want conflict", err)
	}
	if err := s.Put(ctx, "missing", []byte("x"), 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("phantom update = %v, want conflict", err)
	}

	if err := s.Delete(ctx, "k", 5); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale delete = %v, want conflict", err)
	}
	if err := s.Delete(ctx, "k", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "k", 1); err != nil {
		t.Fatalf("delete missing = %v, want no-op", err)
	}
}

func TestSQLiteListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, key := range []string{"queue:a", "queue:b", "deadletter", "queue_x"} {
		if err := s.Put(ctx, key, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}

	// "queue:" must not match "queue_x" even though _ is a LIKE wildcard.
	keys, err := s.List(ctx, "queue:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "queue:a" || keys[1] != "queue:b" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestSQLiteLikeEscaping(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Put(ctx, "a_b", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "axb", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}

	keys, err := s.List(ctx, "a_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a_b" {
		t.Fatalf("keys = %v, underscore must match literally", keys)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(ctx, "k", []byte("persisted"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, exists, err := s2.Get(ctx, "k")
	if err != nil || !exists || string(v.Data) != "persisted" {
		t.Fatalf("reopened get = %q, %v, %v", v.Data, exists, err)
	}
}
