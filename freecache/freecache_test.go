package freecache

import (
	"context"
	"testing"
	"time"

	"github.com/sandrolain/outputcache/test"
)

func TestFreecacheStore(t *testing.T) {
	test.Store(t, New(10*1024*1024))
}

func TestFreecacheTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ttl test in short mode")
	}
	test.StoreTTL(t, New(10*1024*1024), 2*time.Second)
}

func TestEvictByTagKeepsOtherTags(t *testing.T) {
	ctx := context.Background()
	s := New(10 * 1024 * 1024)

	_ = s.Set(ctx, "a", []byte("1"), []string{"news"}, 0)
	_ = s.Set(ctx, "b", []byte("2"), []string{"sports"}, 0)

	if err := s.EvictByTag(ctx, "news"); err != nil {
		t.Fatalf("evict failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("tagged key must be evicted")
	}
	if _, ok, _ := s.Get(ctx, "b"); !ok {
		t.Fatal("other tags must survive")
	}
}
