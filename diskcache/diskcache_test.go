package diskcache

import (
	"testing"
	"time"

	"github.com/sandrolain/outputcache/test"
)

func TestDiskCacheStore(t *testing.T) {
	test.Store(t, New(t.TempDir()))
}

func TestDiskCacheTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ttl test in short mode")
	}
	test.StoreTTL(t, New(t.TempDir()), time.Second)
}

func TestEnvelope(t *testing.T) {
	value, alive := unwrap(wrap([]byte("payload"), 0))
	if !alive || string(value) != "payload" {
		t.Fatalf("zero-ttl envelope: alive=%v value=%q", alive, value)
	}

	value, alive = unwrap(wrap([]byte("payload"), time.Hour))
	if !alive || string(value) != "payload" {
		t.Fatalf("future deadline envelope: alive=%v value=%q", alive, value)
	}

	expired := wrap([]byte("payload"), time.Nanosecond)
	time.Sleep(10 * time.Millisecond)
	if _, alive = unwrap(expired); alive {
		t.Fatal("expired envelope must read as dead")
	}

	if _, alive = unwrap([]byte("short")); alive {
		t.Fatal("truncated envelope must read as dead")
	}
}
