// Package freecache provides a high-performance, zero-GC overhead
// implementation of outputcache.Store using github.com/coocood/freecache as
// the underlying storage.
//
// This backend is suitable for applications that need to cache many entries
// with minimal GC overhead, automatic memory management and LRU eviction.
// Entry expiration is handled natively by freecache; the tag index is kept in
// the same cache under a reserved key prefix.
//
// Example usage:
//
//	store := freecache.New(100 * 1024 * 1024) // 100MB cache
//	cache := outputcache.New(store)
//	mux.Handle("/items", cache.Handler(itemsHandler))
package freecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
)

const tagPrefix = "tag!"

// Store is an implementation of outputcache.Store that uses freecache for
// storage. It provides zero-GC overhead and automatic LRU eviction when the
// cache is full.
type Store struct {
	cache *freecache.Cache

	// tagMu serializes read-modify-write cycles on tag index entries.
	tagMu sync.Mutex
}

// New creates a new Store with the specified size in bytes.
// The cache size will be set to 512KB at minimum.
//
// For large cache sizes, you may want to call debug.SetGCPercent()
// with a lower value to reduce GC overhead.
func New(size int) *Store {
	return &Store{
		cache: freecache.NewCache(size),
	}
}

// Get returns the cached blob and true if present, false if not found or
// expired. The context parameter is accepted for interface compliance but
// not used for in-memory operations.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := s.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set stores the blob with the given tags and ttl. A zero ttl stores the
// entry without expiration; it is then only evicted under memory pressure.
// The context parameter is accepted for interface compliance but not used
// for in-memory operations.
func (s *Store) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	expire := 0
	if ttl > 0 {
		expire = int(ttl / time.Second)
		if expire == 0 {
			expire = 1
		}
	}
	if err := s.cache.Set([]byte(key), value, expire); err != nil {
		return fmt.Errorf("freecache set failed for key %q: %w", key, err)
	}
	for _, tag := range tags {
		if err := s.indexTag(tag, key); err != nil {
			return err
		}
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag.
// The context parameter is accepted for interface compliance but not used
// for in-memory operations.
func (s *Store) EvictByTag(_ context.Context, tag string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(tag)
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.cache.Del([]byte(key))
	}
	s.cache.Del([]byte(tagPrefix + tag))
	return nil
}

// Clear removes all entries from the cache.
func (s *Store) Clear() {
	s.cache.Clear()
}

// EntryCount returns the number of entries currently in the cache, tag index
// entries included.
func (s *Store) EntryCount() int64 {
	return s.cache.EntryCount()
}

// HitRate returns the ratio of cache hits to total lookups.
func (s *Store) HitRate() float64 {
	return s.cache.HitRate()
}

// indexTag appends key to the tag's key list. Tag index entries are stored
// without expiry; keys stay listed after their entries expire, until the tag
// is evicted.
func (s *Store) indexTag(tag, key string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(tag)
	if err != nil {
		return err
	}
	for _, existing := range keys {
		if existing == key {
			return nil
		}
	}
	keys = append(keys, key)
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("freecache tag index encode failed for tag %q: %w", tag, err)
	}
	if err := s.cache.Set([]byte(tagPrefix+tag), data, 0); err != nil {
		return fmt.Errorf("freecache tag index set failed for tag %q: %w", tag, err)
	}
	return nil
}

func (s *Store) taggedKeys(tag string) ([]string, error) {
	data, err := s.cache.Get([]byte(tagPrefix + tag))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("freecache tag index decode failed for tag %q: %w", tag, err)
	}
	return keys, nil
}
