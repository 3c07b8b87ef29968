// Package diskcache provides an implementation of outputcache.Store that
// uses the diskv package for persistent storage on the local filesystem.
//
// diskv has no native expiry, so each value is wrapped in a small envelope
// carrying its absolute deadline; expired entries are dropped lazily on
// read. Storage keys are hashed to produce safe filenames.
package diskcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/peterbourgon/diskv"
)

const (
	tagPrefix    = "tag_"
	envelopeSize = 8
)

// Store is an implementation of outputcache.Store backed by a diskv store.
type Store struct {
	d *diskv.Diskv

	tagMu sync.Mutex
}

// New returns a Store storing files under basePath with a 100MB in-memory
// read cache.
func New(basePath string) *Store {
	return &Store{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			CacheSizeMax: 100 * 1024 * 1024,
		}),
	}
}

// NewWithDiskv returns a Store using the provided diskv instance.
func NewWithDiskv(d *diskv.Diskv) *Store {
	return &Store{d: d}
}

func keyToFilename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// wrap prepends the expiry deadline (unix nanoseconds, 0 for none) to the
// value.
func wrap(value []byte, ttl time.Duration) []byte {
	enveloped := make([]byte, envelopeSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(enveloped, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(enveloped[envelopeSize:], value)
	return enveloped
}

// unwrap splits the envelope and reports whether the entry is still alive.
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

// Get returns the blob stored under key if present and not expired. The
// context parameter is accepted for interface compliance but not used for
// disk operations.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	enveloped, err := s.d.Read(keyToFilename(key))
	if err != nil {
		// File not found is not an error, just missing.
		return nil, false, nil
	}
	value, alive := unwrap(enveloped)
	if !alive {
		_ = s.d.Erase(keyToFilename(key)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return value, true, nil
}

// Set saves the blob with the given tags and ttl.
func (s *Store) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if err := s.d.Write(keyToFilename(key), wrap(value, ttl)); err != nil {
		return fmt.Errorf("diskcache set failed: %w", err)
	}
	for _, tag := range tags {
		if err := s.indexTag(tag, keyToFilename(key)); err != nil {
			return err
		}
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag.
func (s *Store) EvictByTag(_ context.Context, tag string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	filenames, err := s.taggedFilenames(tag)
	if err != nil {
		return err
	}
	for _, filename := range filenames {
		_ = s.d.Erase(filename) //nolint:errcheck // file may be gone already
	}
	_ = s.d.Erase(tagPrefix + keyToFilename(tag)) //nolint:errcheck // best effort
	return nil
}

func (s *Store) indexTag(tag, filename string) error {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	filenames, err := s.taggedFilenames(tag)
	if err != nil {
		return err
	}
	for _, existing := range filenames {
		if existing == filename {
			return nil
		}
	}
	filenames = append(filenames, filename)
	data, err := json.Marshal(filenames)
	if err != nil {
		return fmt.Errorf("diskcache tag index encode failed for tag %q: %w", tag, err)
	}
	if err := s.d.Write(tagPrefix+keyToFilename(tag), data); err != nil {
		return fmt.Errorf("diskcache tag index write failed for tag %q: %w", tag, err)
	}
	return nil
}

func (s *Store) taggedFilenames(tag string) ([]string, error) {
	data, err := s.d.Read(tagPrefix + keyToFilename(tag))
	if err != nil {
		return nil, nil
	}
	var filenames []string
	if err := json.Unmarshal(data, &filenames); err != nil {
		return nil, fmt.Errorf("diskcache tag index decode failed for tag %q: %w", tag, err)
	}
	return filenames, nil
}
