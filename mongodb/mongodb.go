// Package mongodb provides a MongoDB implementation of outputcache.Store
// built on the official go driver.
//
// Entries are documents keyed by _id with a tags array; a TTL index on the
// expiresAt field lets MongoDB expire entries on its own, and tag eviction
// is a DeleteMany on the tags field.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the configuration for creating a MongoDB store.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required unless Client is provided.
	URI string

	// Database is the name of the database to use for caching.
	// Required field.
	Database string

	// Collection is the name of the collection to use for caching.
	// Optional - defaults to "outputcache".
	Collection string

	// Timeout is the timeout for database operations.
	// Optional - defaults to 5 seconds.
	Timeout time.Duration

	// Client is an optional pre-connected client. When set, URI is ignored.
	Client *mongo.Client
}

type cacheDocument struct {
	Key       string     `bson:"_id"`
	Data      []byte     `bson:"data"`
	Tags      []string   `bson:"tags"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// Store is an implementation of outputcache.Store that stores entries in a
// MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	ownsClient bool
}

// New creates a Store with the given configuration, connecting if needed and
// ensuring the TTL and tags indexes exist. Call Close when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Database == "" {
		return nil, errors.New("mongodb database is required")
	}
	collection := config.Collection
	if collection == "" {
		collection = "outputcache"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	client := config.Client
	ownsClient := false
	if client == nil {
		if config.URI == "" {
			return nil, errors.New("mongodb URI is required")
		}
		var err error
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		ownsClient = true
	}

	s := &Store{
		client:     client,
		collection: client.Database(config.Database).Collection(collection),
		timeout:    timeout,
		ownsClient: ownsClient,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		if ownsClient {
			_ = client.Disconnect(ctx) //nolint:errcheck // best effort cleanup
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "tags", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb index creation failed: %w", err)
	}
	return nil
}

// Get returns the blob stored under key if present and not expired. The
// expiry check is applied in the query because the TTL monitor only runs
// periodically.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"_id": key,
		"$or": []bson.M{
			{"expiresAt": bson.M{"$exists": false}},
			{"expiresAt": bson.M{"$gt": time.Now()}},
		},
	}
	var doc cacheDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mongodb get failed for key %q: %w", key, err)
	}
	return doc.Data, true, nil
}

// Set stores the blob with the given tags and ttl, replacing any previous
// document for the key.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := cacheDocument{Key: key, Data: value, Tags: tags}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		doc.ExpiresAt = &expires
	}

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb set failed for key %q: %w", key, err)
	}
	return nil
}

// EvictByTag removes every document stored with the given tag.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.DeleteMany(ctx, bson.M{"tags": tag}); err != nil {
		return fmt.Errorf("mongodb tag eviction failed for tag %q: %w", tag, err)
	}
	return nil
}

// Close disconnects the client if this store created it.
func (s *Store) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}
