//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sandrolain/outputcache/test"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

var sharedRedisEndpoint string

// TestMain sets up the Redis container once for all tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, redisImage)
	if err != nil {
		panic("failed to start Redis container: " + err.Error())
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get Redis endpoint: " + err.Error())
	}
	sharedRedisEndpoint = endpoint

	code := m.Run()
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := New(ctx, Config{Address: sharedRedisEndpoint})
	if err != nil {
		t.Fatalf("failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.FlushDB(ctx).Err()
		_ = store.Close()
	})
	return store
}

func TestRedisStore(t *testing.T) {
	test.Store(t, newTestStore(t))
}

func TestRedisTTL(t *testing.T) {
	test.StoreTTL(t, newTestStore(t), 2*time.Second)
}

func TestRedisEvictByTagAcrossKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Set(ctx, "a", []byte("1"), []string{"news", "frontpage"}, 0)
	_ = store.Set(ctx, "b", []byte("2"), []string{"news"}, 0)
	_ = store.Set(ctx, "c", []byte("3"), []string{"sports"}, 0)

	if err := store.EvictByTag(ctx, "news"); err != nil {
		t.Fatalf("evict failed: %v", err)
	}
	for _, key := range []string{"a", "b"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Fatalf("key %q must be evicted", key)
		}
	}
	if _, ok, _ := store.Get(ctx, "c"); !ok {
		t.Fatal("unrelated keys must survive")
	}
}
