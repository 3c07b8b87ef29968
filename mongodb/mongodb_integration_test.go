//go:build integration

package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sandrolain/outputcache/test"
	"github.com/testcontainers/testcontainers-go"
	mongodbcontainer "github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const mongoImage = "mongo:7"

var sharedMongoURI string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := mongodbcontainer.Run(ctx, mongoImage)
	if err != nil {
		panic("failed to start MongoDB container: " + err.Error())
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get MongoDB connection string: " + err.Error())
	}
	sharedMongoURI = uri

	code := m.Run()
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

func newTestStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	store, err := New(ctx, Config{
		URI:        sharedMongoURI,
		Database:   "outputcache_test",
		Collection: t.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.collection.Drop(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestMongoDBStore(t *testing.T) {
	ctx := context.Background()
	test.Store(t, newTestStore(ctx, t))
}

func TestMongoDBTTL(t *testing.T) {
	ctx := context.Background()
	// The query-side expiry check makes short TTLs observable without
	// waiting for the TTL monitor.
	test.StoreTTL(t, newTestStore(ctx, t), 2*time.Second)
}
