package outputcache

import (
	"context"
	"fmt"
	"net/http"
	"net/textproto"
	"time"

	"github.com/goccy/go-json"
)

// storedEntry is the wire representation of an Entry. Header names are
// serialized in canonical MIME form so case-insensitive lookups survive the
// round trip regardless of what the store does to the blob.
type storedEntry struct {
	Created    time.Time           `json:"created"`
	StatusCode int                 `json:"status_code"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
}

// encodeEntry serializes an entry. The Age header is never stored.
func encodeEntry(e *Entry) ([]byte, error) {
	header := make(map[string][]string, len(e.Header))
	for name, values := range e.Header {
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		if canonical == headerAge {
			continue
		}
		header[canonical] = values
	}
	data, err := json.Marshal(storedEntry{
		Created:    e.Created,
		StatusCode: e.StatusCode,
		Header:     header,
		Body:       e.Body,
		Tags:       e.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("outputcache: encoding entry: %w", err)
	}
	return data, nil
}

// decodeEntry deserializes an entry blob.
func decodeEntry(data []byte) (*Entry, error) {
	var se storedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("outputcache: decoding entry: %w", err)
	}
	header := make(http.Header, len(se.Header))
	for name, values := range se.Header {
		header[textproto.CanonicalMIMEHeaderKey(name)] = values
	}
	return &Entry{
		Created:    se.Created,
		StatusCode: se.StatusCode,
		Header:     header,
		Body:       se.Body,
		Tags:       se.Tags,
	}, nil
}

// getEntry reads and decodes the entry stored under key. A missing key is
// not an error and yields (nil, nil).
func getEntry(ctx context.Context, store Store, key string) (*Entry, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeEntry(data)
}

// storeEntry encodes and persists an entry under key with its tags and ttl.
func storeEntry(ctx context.Context, store Store, key string, e *Entry, ttl time.Duration) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, data, e.Tags, ttl)
}
