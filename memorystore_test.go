package outputcache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreBasics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", []byte("v"), nil, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("get: %q ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore()
	s.clock = clock

	if err := s.Set(ctx, "k", []byte("v"), nil, 10*time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	clock.Advance(9 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}

	clock.Advance(2 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("entry must expire after its ttl")
	}
	if s.Len() != 0 {
		t.Fatal("expired entries must be removed lazily on read")
	}
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore()
	s.clock = clock

	_ = s.Set(ctx, "k", []byte("v"), nil, 0)
	clock.Advance(1000 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("zero ttl entries must not expire")
	}
}

func TestMemoryStoreEvictByTag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Set(ctx, "a", []byte("1"), []string{"news", "frontpage"}, 0)
	_ = s.Set(ctx, "b", []byte("2"), []string{"news"}, 0)
	_ = s.Set(ctx, "c", []byte("3"), []string{"sports"}, 0)

	if err := s.EvictByTag(ctx, "news"); err != nil {
		t.Fatalf("evict failed: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if _, ok, _ := s.Get(ctx, key); ok {
			t.Fatalf("key %q must be evicted", key)
		}
	}
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Fatal("untagged keys must survive")
	}
}

func TestMemoryStoreOverwriteReplacesTags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Set(ctx, "k", []byte("1"), []string{"old"}, 0)
	_ = s.Set(ctx, "k", []byte("2"), []string{"new"}, 0)

	if err := s.EvictByTag(ctx, "old"); err != nil {
		t.Fatalf("evict failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("stale tag memberships must not evict the rewritten entry")
	}

	_ = s.EvictByTag(ctx, "new")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("current tag membership must evict")
	}
}
