// Package blobstore provides an outputcache.Store implementation that uses
// Go Cloud Development Kit (CDK) blob storage for cloud-agnostic cache
// storage.
//
// Supports multiple providers through driver imports:
//   - Amazon S3 (gocloud.dev/blob/s3blob)
//   - Google Cloud Storage (gocloud.dev/blob/gcsblob)
//   - Azure Blob Storage (gocloud.dev/blob/azureblob)
//   - Local filesystem (gocloud.dev/blob/fileblob)
//   - In-memory, for testing (gocloud.dev/blob/memblob)
//
// Blob stores have no expiry or secondary indexes, so per-entry TTLs travel
// in an envelope prefix and tag memberships are marker blobs listed by
// prefix on eviction.
//
// Example usage with S3:
//
//	import (
//	    _ "gocloud.dev/blob/s3blob"
//	    "github.com/sandrolain/outputcache/blobstore"
//	)
//
//	store, err := blobstore.New(ctx, blobstore.Config{
//	    BucketURL: "s3://my-bucket?region=us-west-2",
//	})
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const (
	entryPrefix  = "entry/"
	tagPrefix    = "tag/"
	envelopeSize = 8
)

// Config holds the configuration for the blob store.
type Config struct {
	// BucketURL is the Go Cloud blob URL (e.g., "s3://bucket?region=us-west-2").
	BucketURL string

	// KeyPrefix is prepended to all blob keys (default: "outputcache/").
	KeyPrefix string

	// Timeout for blob operations (default: 30s).
	Timeout time.Duration

	// Bucket is an optional pre-opened bucket (if nil, BucketURL is used).
	Bucket *blob.Bucket
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "outputcache/",
		Timeout:   30 * time.Second,
	}
}

// Store is an implementation of outputcache.Store over a blob bucket.
type Store struct {
	bucket     *blob.Bucket
	keyPrefix  string
	timeout    time.Duration
	ownsBucket bool
}

// New creates a Store for the configured bucket. Call Close when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	bucket := config.Bucket
	ownsBucket := false
	if bucket == nil {
		if config.BucketURL == "" {
			return nil, errors.New("blobstore bucket URL is required")
		}
		var err error
		bucket, err = blob.OpenBucket(ctx, config.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %q: %w", config.BucketURL, err)
		}
		ownsBucket = true
	}
	return &Store{
		bucket:     bucket,
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
		ownsBucket: ownsBucket,
	}, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) entryKey(key string) string {
	return s.keyPrefix + entryPrefix + hashKey(key)
}

func (s *Store) tagMarker(tag, key string) string {
	return s.keyPrefix + tagPrefix + hashKey(tag) + "/" + hashKey(key)
}

// Get returns the blob stored under key if present and not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	enveloped, err := s.bucket.ReadAll(ctx, s.entryKey(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blobstore get failed for key %q: %w", key, err)
	}
	if len(enveloped) < envelopeSize {
		return nil, false, nil
	}
	deadline := binary.BigEndian.Uint64(enveloped)
	if deadline != 0 && time.Now().UnixNano() >= int64(deadline) {
		_ = s.bucket.Delete(ctx, s.entryKey(key)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return enveloped[envelopeSize:], true, nil
}

// Set stores the blob with the given tags and ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	enveloped := make([]byte, envelopeSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(enveloped, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(enveloped[envelopeSize:], value)

	if err := s.bucket.WriteAll(ctx, s.entryKey(key), enveloped, nil); err != nil {
		return fmt.Errorf("blobstore set failed for key %q: %w", key, err)
	}
	for _, tag := range tags {
		if err := s.bucket.WriteAll(ctx, s.tagMarker(tag, key), []byte(s.entryKey(key)), nil); err != nil {
			return fmt.Errorf("blobstore tag marker write failed for tag %q: %w", tag, err)
		}
	}
	return nil
}

// EvictByTag removes every entry whose marker lives under the tag's prefix.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefix := s.keyPrefix + tagPrefix + hashKey(tag) + "/"
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("blobstore tag listing failed for tag %q: %w", tag, err)
		}
		entryKey, err := s.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			return fmt.Errorf("blobstore tag marker read failed: %w", err)
		}
		if err := s.bucket.Delete(ctx, string(entryKey)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("blobstore tag eviction failed for tag %q: %w", tag, err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("blobstore tag marker delete failed for tag %q: %w", tag, err)
		}
	}
	return nil
}

// Close closes the bucket if this store opened it.
func (s *Store) Close() error {
	if !s.ownsBucket {
		return nil
	}
	return s.bucket.Close()
}
