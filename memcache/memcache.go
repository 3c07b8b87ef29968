// Package memcache provides a memcached implementation of outputcache.Store
// built on github.com/bradfitz/gomemcache.
//
// Cache keys are hashed with SHA-256 before hitting memcached, since raw
// storage keys may exceed the 250 byte limit or contain bytes memcached
// rejects. Entry expiration is native; the tag index lives in regular items
// under a reserved prefix.
package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/goccy/go-json"
)

const tagPrefix = "octag_"

// Store is an implementation of outputcache.Store that stores entries in a
// memcached cluster.
type Store struct {
	client *memcache.Client

	tagMu sync.Mutex
}

// New returns a Store talking to the given memcached servers
// (e.g. "localhost:11211").
func New(servers ...string) *Store {
	return &Store{client: memcache.New(servers...)}
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client *memcache.Client) *Store {
	return &Store{client: client}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get returns the blob stored under key if present. The context parameter is
// accepted for interface compliance; gomemcache does not support
// per-operation cancellation.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := s.client.Get(hashKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memcache get failed for key %q: %w", key, err)
	}
	return item.Value, true, nil
}

// Set stores the blob with the given tags and ttl.
func (s *Store) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	item := &memcache.Item{Key: hashKey(key), Value: value}
	if ttl > 0 {
		item.Expiration = int32(ttl / time.Second)
		if item.Expiration == 0 {
			item.Expiration = 1
		}
	}
	if err := s.client.Set(item); err != nil {
		return fmt.Errorf("memcache set failed for key %q: %w", key, err)
	}
	for _, tag := range tags {
		if err := s.indexTag(tag, hashKey(key)); err != nil {
			return err
		}
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag.
func (s *Store) EvictByTag(_ context.Context, tag string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(tag)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return fmt.Errorf("memcache delete failed during tag eviction: %w", err)
		}
	}
	if err := s.client.Delete(tagPrefix + hashKey(tag)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcache tag index delete failed for tag %q: %w", tag, err)
	}
	return nil
}

// indexTag appends a hashed entry key to the tag's key list. The
// read-modify-write cycle is serialized per process; concurrent writers in
// other processes may lose index updates, which degrades to an incomplete
// eviction rather than incorrect reads.
func (s *Store) indexTag(tag, hashedKey string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(tag)
	if err != nil {
		return err
	}
	for _, existing := range keys {
		if existing == hashedKey {
			return nil
		}
	}
	keys = append(keys, hashedKey)
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("memcache tag index encode failed for tag %q: %w", tag, err)
	}
	if err := s.client.Set(&memcache.Item{Key: tagPrefix + hashKey(tag), Value: data}); err != nil {
		return fmt.Errorf("memcache tag index set failed for tag %q: %w", tag, err)
	}
	return nil
}

func (s *Store) taggedKeys(tag string) ([]string, error) {
	item, err := s.client.Get(tagPrefix + hashKey(tag))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("memcache tag index read failed for tag %q: %w", tag, err)
	}
	var keys []string
	if err := json.Unmarshal(item.Value, &keys); err != nil {
		return nil, fmt.Errorf("memcache tag index decode failed for tag %q: %w", tag, err)
	}
	return keys, nil
}
