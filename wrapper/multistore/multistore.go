// Package multistore provides a multi-tiered outputcache.Store that
// cascades through several backends with automatic fallback and promotion.
// This enables caching strategies with different performance and persistence
// characteristics at each tier.
package multistore

import (
	"context"
	"time"

	"github.com/sandrolain/outputcache"
)

// MultiStore implements a tiered storage strategy where tiers are ordered
// from fastest/smallest (first) to slowest/largest (last). On reads it
// searches each tier in order and promotes found values to faster tiers. On
// writes and tag evictions it addresses all tiers. Hot entries naturally
// migrate to the fast tiers while the slow tiers provide persistence.
//
// Example use case:
//   - Tier 1: freecache (fast, small, volatile)
//   - Tier 2: Redis (medium speed, larger, shared)
//   - Tier 3: PostgreSQL (slower, largest, durable)
type MultiStore struct {
	tiers []outputcache.Store

	// promotionTTL is applied to values promoted into faster tiers, since
	// the original entry ttl is not recoverable from the blob.
	promotionTTL time.Duration
}

// New creates a MultiStore with the given tiers, ordered from fastest to
// slowest. Promoted values are stored in faster tiers with promotionTTL (a
// zero value stores them without expiry).
//
// Returns nil if no tiers are provided, any tier is nil, or a tier is
// duplicated.
func New(promotionTTL time.Duration, tiers ...outputcache.Store) *MultiStore {
	if len(tiers) == 0 {
		return nil
	}
	seen := make(map[outputcache.Store]bool)
	for _, tier := range tiers {
		if tier == nil || seen[tier] {
			return nil
		}
		seen[tier] = true
	}
	return &MultiStore{tiers: tiers, promotionTTL: promotionTTL}
}

// Get searches each tier in order. A value found in a slower tier is
// promoted to all faster tiers for subsequent quick access.
func (s *MultiStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, tier := range s.tiers {
		value, ok, err := tier.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		for _, faster := range s.tiers[:i] {
			if err := faster.Set(ctx, key, value, nil, s.promotionTTL); err != nil {
				return nil, false, err
			}
		}
		return value, true, nil
	}
	return nil, false, nil
}

// Set stores the value in every tier.
func (s *MultiStore) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	for _, tier := range s.tiers {
		if err := tier.Set(ctx, key, value, tags, ttl); err != nil {
			return err
		}
	}
	return nil
}

// EvictByTag evicts the tag from every tier.
func (s *MultiStore) EvictByTag(ctx context.Context, tag string) error {
	for _, tier := range s.tiers {
		if err := tier.EvictByTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}
