// Package hazelcast provides a Hazelcast implementation of
// outputcache.Store using the official Go client.
//
// Entries live in a distributed Map with native per-entry TTLs; the tag
// index lives in a sibling Map holding key lists per tag.
package hazelcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hazelcast/hazelcast-go-client"
)

const (
	// DefaultMapName is the Map used for cache entries.
	DefaultMapName = "outputcache"
	// DefaultTagMapName is the Map used for the tag index.
	DefaultTagMapName = "outputcache-tags"
)

// Config holds the configuration for creating a Hazelcast store.
type Config struct {
	// ClusterName is the Hazelcast cluster name. Optional.
	ClusterName string

	// Addresses are the cluster member addresses
	// (e.g., "localhost:5701"). Optional - the client defaults apply.
	Addresses []string

	// MapName overrides DefaultMapName.
	MapName string

	// TagMapName overrides DefaultTagMapName.
	TagMapName string

	// Client is an optional pre-started client. When set, ClusterName and
	// Addresses are ignored.
	Client *hazelcast.Client
}

// Store is an implementation of outputcache.Store backed by Hazelcast
// distributed maps.
type Store struct {
	client  *hazelcast.Client
	entries *hazelcast.Map
	tags    *hazelcast.Map

	tagMu sync.Mutex
}

// New creates a Store, starting a client when none is supplied. Call Close
// when done.
func New(ctx context.Context, config Config) (*Store, error) {
	client := config.Client
	if client == nil {
		cc := hazelcast.NewConfig()
		if config.ClusterName != "" {
			cc.Cluster.Name = config.ClusterName
		}
		if len(config.Addresses) > 0 {
			cc.Cluster.Network.SetAddresses(config.Addresses...)
		}
		var err error
		client, err = hazelcast.StartNewClientWithConfig(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("failed to start Hazelcast client: %w", err)
		}
	}

	mapName := config.MapName
	if mapName == "" {
		mapName = DefaultMapName
	}
	tagMapName := config.TagMapName
	if tagMapName == "" {
		tagMapName = DefaultTagMapName
	}

	entries, err := client.GetMap(ctx, mapName)
	if err != nil {
		return nil, fmt.Errorf("failed to get Hazelcast map %q: %w", mapName, err)
	}
	tags, err := client.GetMap(ctx, tagMapName)
	if err != nil {
		return nil, fmt.Errorf("failed to get Hazelcast map %q: %w", tagMapName, err)
	}
	return &Store{client: client, entries: entries, tags: tags}, nil
}

// Get returns the blob stored under key if present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.entries.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("hazelcast get failed for key %q: %w", key, err)
	}
	if value == nil {
		return nil, false, nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("hazelcast returned unexpected type %T for key %q", value, key)
	}
	return data, true, nil
}

// Set stores the blob with the given tags and ttl. Hazelcast applies the
// ttl natively; a zero ttl stores the entry without expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = s.entries.SetWithTTL(ctx, key, value, ttl)
	} else {
		err = s.entries.Set(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("hazelcast set failed for key %q: %w", key, err)
	}
	for _, tag := range tags {
		if err := s.indexTag(ctx, tag, key); err != nil {
			return err
		}
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(ctx, tag)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.entries.Delete(ctx, key); err != nil {
			return fmt.Errorf("hazelcast delete failed during tag eviction: %w", err)
		}
	}
	if err := s.tags.Delete(ctx, tag); err != nil {
		return fmt.Errorf("hazelcast tag index delete failed for tag %q: %w", tag, err)
	}
	return nil
}

// Close shuts the client down.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Shutdown(ctx)
}

func (s *Store) indexTag(ctx context.Context, tag, key string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	keys, err := s.taggedKeys(ctx, tag)
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
		return fmt.Errorf("hazelcast tag index encode failed for tag %q: %w", tag, err)
	}
	if err := s.tags.Set(ctx, tag, data); err != nil {
		return fmt.Errorf("hazelcast tag index set failed for tag %q: %w", tag, err)
	}
	return nil
}

func (s *Store) taggedKeys(ctx context.Context, tag string) ([]string, error) {
	value, err := s.tags.Get(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("hazelcast tag index read failed for tag %q: %w", tag, err)
	}
	if value == nil {
		return nil, nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("hazelcast tag index has unexpected type %T for tag %q", value, tag)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("hazelcast tag index decode failed for tag %q: %w", tag, err)
	}
	return keys, nil
}
