// Package compressstore provides a store wrapper that transparently
// compresses cached blobs to reduce storage requirements and network
// bandwidth usage. Supports multiple compression algorithms: gzip, brotli,
// and snappy.
package compressstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sandrolain/outputcache"
)

// Algorithm represents the compression algorithm to use.
type Algorithm int

const (
	// Gzip uses gzip compression (good balance of compression and speed).
	Gzip Algorithm = iota
	// Brotli uses brotli compression (best compression ratio, slower).
	Brotli
	// Snappy uses snappy compression (fastest, lower compression ratio).
	Snappy
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// MinCompressSize is the size below which blobs are stored uncompressed;
// compressing tiny payloads costs more than it saves.
const MinCompressSize = 256

// Marker bytes prepended to stored blobs so Get can tell how to decode.
const (
	markerRaw        = 0x00
	markerCompressed = 0x01
)

// Stats holds compression statistics.
type Stats struct {
	CompressedBytes   int64   // Total bytes after compression
	UncompressedBytes int64   // Total bytes before compression
	CompressedCount   int64   // Number of compressed entries
	UncompressedCount int64   // Number of entries stored raw (too small or incompressible)
	SavingsPercent    float64 // Space savings percentage
}

type compressFunc func([]byte) ([]byte, error)

type decompressFunc func([]byte) ([]byte, error)

// Store wraps an outputcache.Store with transparent value compression.
// Tags and TTLs pass through untouched.
type Store struct {
	store      outputcache.Store
	algorithm  Algorithm
	compress   compressFunc
	decompress decompressFunc

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

// New returns a compressing wrapper around store using the given algorithm.
func New(store outputcache.Store, algorithm Algorithm) (*Store, error) {
	s := &Store{store: store, algorithm: algorithm}
	switch algorithm {
	case Gzip:
		s.compress, s.decompress = gzipCompress, gzipDecompress
	case Brotli:
		s.compress, s.decompress = brotliCompress, brotliDecompress
	case Snappy:
		s.compress, s.decompress = snappyCompress, snappyDecompress
	default:
		return nil, fmt.Errorf("compressstore: unknown algorithm %d", algorithm)
	}
	return s, nil
}

// Get retrieves and decompresses the blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	switch data[0] {
	case markerRaw:
		return data[1:], true, nil
	case markerCompressed:
		value, err := s.decompress(data[1:])
		if err != nil {
			return nil, false, fmt.Errorf("compressstore: %s decompression failed for key %q: %w", s.algorithm, key, err)
		}
		return value, true, nil
	default:
		return nil, false, fmt.Errorf("compressstore: unknown marker byte %#x for key %q", data[0], key)
	}
}

// Set compresses and stores the blob. Payloads below MinCompressSize are
// stored raw.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if len(value) < MinCompressSize {
		s.uncompressedCount.Add(1)
		return s.store.Set(ctx, key, append([]byte{markerRaw}, value...), tags, ttl)
	}
	compressed, err := s.compress(value)
	if err != nil {
		return fmt.Errorf("compressstore: %s compression failed for key %q: %w", s.algorithm, key, err)
	}
	if len(compressed)+1 >= len(value) {
		// Incompressible payload; store it raw.
		s.uncompressedCount.Add(1)
		return s.store.Set(ctx, key, append([]byte{markerRaw}, value...), tags, ttl)
	}
	s.compressedCount.Add(1)
	s.uncompressedBytes.Add(int64(len(value)))
	s.compressedBytes.Add(int64(len(compressed)))
	return s.store.Set(ctx, key, append([]byte{markerCompressed}, compressed...), tags, ttl)
}

// EvictByTag passes through to the underlying store.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	return s.store.EvictByTag(ctx, tag)
}

// Stats returns a snapshot of the compression statistics.
func (s *Store) Stats() Stats {
	stats := Stats{
		CompressedBytes:   s.compressedBytes.Load(),
		UncompressedBytes: s.uncompressedBytes.Load(),
		CompressedCount:   s.compressedCount.Load(),
		UncompressedCount: s.uncompressedCount.Load(),
	}
	if stats.UncompressedBytes > 0 {
		stats.SavingsPercent = 100 * (1 - float64(stats.CompressedBytes)/float64(stats.UncompressedBytes))
	}
	return stats
}
