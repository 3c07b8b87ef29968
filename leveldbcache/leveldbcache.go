// Package leveldbcache provides an implementation of outputcache.Store that
// uses github.com/syndtr/goleveldb/leveldb for embedded persistent storage.
//
// Expiry is carried in an envelope prefix on each value and enforced lazily
// on read. Tag memberships are marker keys under a dedicated prefix, swept
// with a range iterator on eviction.
package leveldbcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	entryPrefix  = "e!"
	tagPrefix    = "t!"
	envelopeSize = 8
)

// Store is an implementation of outputcache.Store with leveldb storage.
type Store struct {
	db *leveldb.DB
}

// New constructs a Store backed by a leveldb database at the given path.
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb open failed for %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB returns a Store using an existing leveldb handle.
func NewWithDB(db *leveldb.DB) *Store {
	return &Store{db: db}
}

func entryKey(key string) []byte {
	return []byte(entryPrefix + key)
}

// tagMarker composes a marker key binding tag to key. The tag length prefix
// keeps markers parseable even when tags contain the separator.
func tagMarker(tag, key string) []byte {
	return []byte(fmt.Sprintf("%s%d!%s!%s", tagPrefix, len(tag), tag, key))
}

func tagRange(tag string) *util.Range {
	return util.BytesPrefix([]byte(fmt.Sprintf("%s%d!%s!", tagPrefix, len(tag), tag)))
}

// Get returns the blob stored under key if present and not expired. The
// context parameter is accepted for interface compliance but not used for
// LevelDB operations.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	enveloped, err := s.db.Get(entryKey(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("leveldb get failed for key %q: %w", key, err)
	}
	if len(enveloped) < envelopeSize {
		return nil, false, nil
	}
	deadline := binary.BigEndian.Uint64(enveloped)
	if deadline != 0 && time.Now().UnixNano() >= int64(deadline) {
		_ = s.db.Delete(entryKey(key), nil) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return enveloped[envelopeSize:], true, nil
}

// Set saves the blob and its tag markers in a single batch.
func (s *Store) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	enveloped := make([]byte, envelopeSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(enveloped, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(enveloped[envelopeSize:], value)

	batch := new(leveldb.Batch)
	batch.Put(entryKey(key), enveloped)
	for _, tag := range tags {
		batch.Put(tagMarker(tag, key), nil)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb set failed for key %q: %w", key, err)
	}
	return nil
}

// EvictByTag removes every entry whose marker lives under the tag's prefix.
func (s *Store) EvictByTag(_ context.Context, tag string) error {
	prefix := tagRange(tag)
	iter := s.db.NewIterator(prefix, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	markerPrefixLen := len(prefix.Start)
	for iter.Next() {
		marker := iter.Key()
		key := string(marker[markerPrefixLen:])
		batch.Delete(entryKey(key))
		batch.Delete(append([]byte(nil), marker...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb tag sweep failed for tag %q: %w", tag, err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb tag eviction failed for tag %q: %w", tag, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
