package compressstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sandrolain/outputcache"
	"github.com/sandrolain/outputcache/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressStoreAllAlgorithms(t *testing.T) {
	for _, algorithm := range []Algorithm{Gzip, Brotli, Snappy} {
		t.Run(algorithm.String(), func(t *testing.T) {
			store, err := New(outputcache.NewMemoryStore(), algorithm)
			require.NoError(t, err)
			test.Store(t, store)
		})
	}
}

func TestCompressStoreCompressesLargePayloads(t *testing.T) {
	ctx := context.Background()
	inner := outputcache.NewMemoryStore()
	store, err := New(inner, Gzip)
	require.NoError(t, err)

	payload := []byte(strings.Repeat("compressible content ", 200))
	require.NoError(t, store.Set(ctx, "k", payload, nil, 0))

	stored, ok, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(markerCompressed), stored[0])
	assert.Less(t, len(stored), len(payload))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bytes.Equal(payload, got))

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.CompressedCount)
	assert.Greater(t, stats.SavingsPercent, 0.0)
}

func TestCompressStoreSkipsSmallPayloads(t *testing.T) {
	ctx := context.Background()
	inner := outputcache.NewMemoryStore()
	store, err := New(inner, Snappy)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "k", []byte("tiny"), nil, 0))

	stored, ok, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(markerRaw), stored[0])

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("tiny"), got)
	assert.Equal(t, int64(1), store.Stats().UncompressedCount)
}

func TestCompressStoreUnknownAlgorithm(t *testing.T) {
	_, err := New(outputcache.NewMemoryStore(), Algorithm(42))
	assert.Error(t, err)
}

func TestCompressStoreUnknownMarker(t *testing.T) {
	ctx := context.Background()
	inner := outputcache.NewMemoryStore()
	store, err := New(inner, Gzip)
	require.NoError(t, err)

	require.NoError(t, inner.Set(ctx, "k", []byte{0xFF, 1, 2, 3}, nil, 0))
	_, _, err = store.Get(ctx, "k")
	assert.Error(t, err)
}
