package multistore

import (
	"context"
	"testing"

	"github.com/sandrolain/outputcache"
	"github.com/sandrolain/outputcache/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiStoreAsStore(t *testing.T) {
	store := New(0, outputcache.NewMemoryStore(), outputcache.NewMemoryStore())
	require.NotNil(t, store)
	test.Store(t, store)
}

func TestMultiStoreValidation(t *testing.T) {
	assert.Nil(t, New(0), "no tiers")
	assert.Nil(t, New(0, nil), "nil tier")

	tier := outputcache.NewMemoryStore()
	assert.Nil(t, New(0, tier, tier), "duplicate tier")
}

func TestMultiStorePromotesToFasterTiers(t *testing.T) {
	ctx := context.Background()
	fast := outputcache.NewMemoryStore()
	slow := outputcache.NewMemoryStore()
	store := New(0, fast, slow)
	require.NotNil(t, store)

	// Seed only the slow tier.
	require.NoError(t, slow.Set(ctx, "k", []byte("v"), nil, 0))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	// The value must now be in the fast tier too.
	promoted, ok, err := fast.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), promoted)
}

func TestMultiStoreWritesAllTiers(t *testing.T) {
	ctx := context.Background()
	fast := outputcache.NewMemoryStore()
	slow := outputcache.NewMemoryStore()
	store := New(0, fast, slow)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), []string{"tag"}, 0))
	for name, tier := range map[string]*outputcache.MemoryStore{"fast": fast, "slow": slow} {
		_, ok, err := tier.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "missing in %s tier", name)
	}

	require.NoError(t, store.EvictByTag(ctx, "tag"))
	for name, tier := range map[string]*outputcache.MemoryStore{"fast": fast, "slow": slow} {
		_, ok, err := tier.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok, "still present in %s tier", name)
	}
}
