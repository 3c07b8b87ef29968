// Package natskv provides a NATS JetStream Key/Value implementation of
// outputcache.Store.
//
// JetStream K/V buckets only support bucket-level TTLs, so per-entry expiry
// is carried in an envelope prefix on each value and enforced lazily on
// read. Storage keys are hashed to fit the restricted K/V key charset; tag
// memberships are marker keys under a "tag." subtree whose values carry the
// hashed entry key.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	entryPrefix  = "entry."
	tagPrefix    = "tag."
	envelopeSize = 8
)

// Config holds the configuration for creating a NATS K/V store.
type Config struct {
	// NATSUrl is the URL of the NATS server (e.g., "nats://localhost:4222").
	// If empty, defaults to nats.DefaultURL.
	NATSUrl string

	// Bucket is the name of the K/V bucket to use for caching.
	// Required field.
	Bucket string

	// Description is an optional description for the K/V bucket.
	Description string

	// NATSOptions are additional options to pass to nats.Connect.
	// Optional.
	NATSOptions []nats.Option
}

// Store is an implementation of outputcache.Store that keeps entries in a
// NATS JetStream Key/Value bucket.
type Store struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// New connects to NATS, creates or binds the K/V bucket and returns the
// store. Call Close when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("natskv bucket is required")
	}
	url := config.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.NATSOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create K/V bucket %q: %w", config.Bucket, err)
	}
	return &Store{kv: kv, nc: nc}, nil
}

// NewWithKeyValue returns a Store over an existing K/V bucket. The
// connection is not owned and Close becomes a no-op.
func NewWithKeyValue(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func entryKey(key string) string {
	return entryPrefix + hashKey(key)
}

func tagMarker(tag, key string) string {
	return tagPrefix + hashKey(tag) + "." + hashKey(key)
}

func wrap(value []byte, ttl time.Duration) []byte {
	enveloped := make([]byte, envelopeSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(enveloped, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(enveloped[envelopeSize:], value)
	return enveloped
}

func unwrap(enveloped []byte) ([]byte, bool) {
	if len(enveloped) < envelopeSize {
		return nil, false
	}
	deadline := binary.BigEndian.Uint64(enveloped)
	if deadline != 0 && time.Now().UnixNano() >= int64(deadline) {
		return nil, false
	}
	return enveloped[envelopeSize:], true
}

// Get returns the blob stored under key if present and not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, entryKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get failed for key %q: %w", key, err)
	}
	value, alive := unwrap(entry.Value())
	if !alive {
		_ = s.kv.Delete(ctx, entryKey(key)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores the blob with the given tags and ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if _, err := s.kv.Put(ctx, entryKey(key), wrap(value, ttl)); err != nil {
		return fmt.Errorf("natskv set failed for key %q: %w", key, err)
	}
	for _, tag := range tags {
		if _, err := s.kv.Put(ctx, tagMarker(tag, key), []byte(entryKey(key))); err != nil {
			return fmt.Errorf("natskv tag marker set failed for tag %q: %w", tag, err)
		}
	}
	return nil
}

// EvictByTag removes every entry whose marker lives under the tag's
// subtree.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	prefix := tagPrefix + hashKey(tag) + "."
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("natskv key listing failed: %w", err)
	}
	for _, marker := range keys {
		if !strings.HasPrefix(marker, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, marker)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("natskv tag marker read failed: %w", err)
		}
		if err := s.kv.Delete(ctx, string(entry.Value())); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("natskv tag eviction failed for tag %q: %w", tag, err)
		}
		if err := s.kv.Delete(ctx, marker); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("natskv tag marker delete failed for tag %q: %w", tag, err)
		}
	}
	return nil
}

// Close closes the NATS connection if this store created it.
func (s *Store) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
