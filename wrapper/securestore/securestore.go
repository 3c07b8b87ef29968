// Package securestore provides a store wrapper that hashes keys with
// SHA-256 and encrypts values with AES-256-GCM before they reach the
// backend. The encryption key is derived from a passphrase using scrypt.
//
// Use this wrapper when the backing store lives outside the trust boundary
// of the application (shared Redis, cloud buckets, disk). Tags are hashed as
// well so the backend never sees plaintext tag names.
package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sandrolain/outputcache"
	"golang.org/x/crypto/scrypt"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation.
	scryptN = 32768
	// scryptR is the block size parameter for scrypt.
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt.
	scryptP = 1
	// keyLength is the desired key length for AES-256.
	keyLength = 32
	// nonceSize is the size of the GCM nonce.
	nonceSize = 12
)

// Store wraps an outputcache.Store with key hashing and value encryption.
type Store struct {
	store outputcache.Store
	gcm   cipher.AEAD
}

// New returns a Store encrypting with a key derived from passphrase. The
// passphrase must be kept secret and consistent across restarts; data
// written with a different passphrase is unreadable.
func New(store outputcache.Store, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, errors.New("securestore: passphrase cannot be empty")
	}
	// The salt is fixed so that independent processes sharing the
	// passphrase derive the same key.
	salt := sha256.Sum256([]byte("outputcache-securestore-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("securestore: failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("securestore: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("securestore: failed to create GCM: %w", err)
	}
	return &Store{store: store, gcm: gcm}, nil
}

// hashKey converts a storage key to its SHA-256 hex representation.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get retrieves and decrypts the blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := s.store.Get(ctx, hashKey(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	plaintext, err := s.decrypt(data)
	if err != nil {
		return nil, false, fmt.Errorf("securestore: decryption failed for key %q: %w", key, err)
	}
	return plaintext, true, nil
}

// Set encrypts and stores the blob; key and tags are hashed.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	ciphertext, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("securestore: encryption failed for key %q: %w", key, err)
	}
	hashedTags := make([]string, len(tags))
	for i, tag := range tags {
		hashedTags[i] = hashKey(tag)
	}
	return s.store.Set(ctx, hashKey(key), ciphertext, hashedTags, ttl)
}

// EvictByTag evicts by the hashed tag.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	return s.store.EvictByTag(ctx, hashKey(tag))
}

// encrypt seals data with a random nonce prepended to the ciphertext.
func (s *Store) encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt opens data sealed by encrypt.
func (s *Store) decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}
