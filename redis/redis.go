// Package redis provides a Redis implementation of outputcache.Store built
// on github.com/redis/go-redis/v9.
//
// Entries are stored as plain string values with their ttl applied natively
// by Redis. Tags are maintained as Redis sets so that EvictByTag is a set
// read plus a multi-key delete.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix is prepended to entry keys to avoid collision with
	// other data stored in Redis.
	DefaultKeyPrefix = "outputcache:"
	// DefaultTagPrefix is prepended to tag set keys.
	DefaultTagPrefix = "outputcache:tag:"
)

// Config holds the configuration for creating a Redis store.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required unless Client is provided.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// KeyPrefix overrides DefaultKeyPrefix.
	KeyPrefix string

	// TagPrefix overrides DefaultTagPrefix.
	TagPrefix string

	// Client is an optional pre-configured client. When set, Address,
	// Password and DB are ignored.
	Client *redis.Client
}

// Store is an implementation of outputcache.Store that keeps entries in a
// Redis server.
type Store struct {
	client    *redis.Client
	keyPrefix string
	tagPrefix string
}

// New creates a new Store with the given configuration and verifies the
// connection with a PING. The caller should call Close when done.
func New(ctx context.Context, config Config) (*Store, error) {
	client := config.Client
	if client == nil {
		if config.Address == "" {
			return nil, errors.New("redis address is required")
		}
		client = redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	tagPrefix := config.TagPrefix
	if tagPrefix == "" {
		tagPrefix = DefaultTagPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix, tagPrefix: tagPrefix}, nil
}

// NewWithClient returns a Store using an existing client with the default
// prefixes. No connection check is performed.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, keyPrefix: DefaultKeyPrefix, tagPrefix: DefaultTagPrefix}
}

func (s *Store) entryKey(key string) string {
	return s.keyPrefix + key
}

func (s *Store) tagKey(tag string) string {
	return s.tagPrefix + tag
}

// Get returns the blob stored under key if present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get failed for key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores the blob with the given tags and ttl. The entry and its tag
// memberships are written in a single pipeline.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(key), value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, s.tagKey(tag), s.entryKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed for key %q: %w", key, err)
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag along with the
// tag set itself.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	members, err := s.client.SMembers(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return fmt.Errorf("redis tag read failed for tag %q: %w", tag, err)
	}
	pipe := s.client.TxPipeline()
	if len(members) > 0 {
		pipe.Del(ctx, members...)
	}
	pipe.Del(ctx, s.tagKey(tag))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis tag eviction failed for tag %q: %w", tag, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
