// Package test provides a shared exerciser for outputcache.Store
// implementations.
package test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sandrolain/outputcache"
)

// Store exercises an outputcache.Store implementation: basic get/set
// round-trips, overwrite, and tag eviction.
func Store(t *testing.T, store outputcache.Store) {
	t.Helper()
	ctx := context.Background()
	key := "testKey"

	_, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if ok {
		t.Fatal("retrieved key before adding it")
	}

	val := []byte("some bytes")
	if err := store.Set(ctx, key, val, []string{"testTag"}, 0); err != nil {
		t.Fatalf("error setting key: %v", err)
	}

	retVal, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if !ok {
		t.Fatal("could not retrieve an element we just added")
	}
	if !bytes.Equal(retVal, val) {
		t.Fatal("retrieved a different value than what we put in")
	}

	val2 := []byte("other bytes")
	if err := store.Set(ctx, key, val2, []string{"otherTag"}, 0); err != nil {
		t.Fatalf("error overwriting key: %v", err)
	}
	retVal, ok, err = store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("error getting overwritten key: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(retVal, val2) {
		t.Fatal("overwrite did not replace the value")
	}

	if err := store.EvictByTag(ctx, "otherTag"); err != nil {
		t.Fatalf("error evicting by tag: %v", err)
	}
	_, ok, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key after eviction: %v", err)
	}
	if ok {
		t.Fatal("evicted key still present")
	}

	if err := store.EvictByTag(ctx, "absentTag"); err != nil {
		t.Fatalf("evicting an unknown tag must not fail: %v", err)
	}
}

// StoreTTL exercises TTL behavior for backends with real expiry. It sleeps,
// so keep the resolution coarse but short.
func StoreTTL(t *testing.T, store outputcache.Store, resolution time.Duration) {
	t.Helper()
	ctx := context.Background()

	if err := store.Set(ctx, "ttlKey", []byte("v"), nil, resolution); err != nil {
		t.Fatalf("error setting key with ttl: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "ttlKey"); !ok {
		t.Fatal("entry missing right after set")
	}

	time.Sleep(resolution + resolution/2)

	if _, ok, _ := store.Get(ctx, "ttlKey"); ok {
		t.Fatal("entry still present after its ttl")
	}
}
