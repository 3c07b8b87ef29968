//go:build integration

package hazelcast

import (
	"context"
	"testing"
	"time"

	"github.com/sandrolain/outputcache/test"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const hazelcastImage = "hazelcast/hazelcast:5.5"

func setupHazelcast(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        hazelcastImage,
		ExposedPorts: []string{"5701/tcp"},
		WaitingFor:   wait.ForListeningPort("5701/tcp").WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Hazelcast container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5701")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return host + ":" + port.Port()
}

func newTestStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	address := setupHazelcast(ctx, t)
	store, err := New(ctx, Config{
		Addresses:  []string{address},
		MapName:    "outputcache-" + t.Name(),
		TagMapName: "outputcache-tags-" + t.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	return store
}

func TestHazelcastStore(t *testing.T) {
	ctx := context.Background()
	test.Store(t, newTestStore(ctx, t))
}

func TestHazelcastTTL(t *testing.T) {
	ctx := context.Background()
	test.StoreTTL(t, newTestStore(ctx, t), 2*time.Second)
}
