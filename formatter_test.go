package outputcache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestEntryRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		Created:    created,
		StatusCode: 203,
		Header: http.Header{
			"Content-Type": {"text/plain; charset=utf-8"},
			"Etag":         {`"v1"`},
			"X-Multi":      {"a", "b"},
		},
		Body: []byte("hello"),
		Tags: []string{"articles", "frontpage"},
	}

	data, err := encodeEntry(entry)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := decodeEntry(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !got.Created.Equal(created) {
		t.Fatalf("created %v, want %v", got.Created, created)
	}
	if got.StatusCode != 203 {
		t.Fatalf("status %d", got.StatusCode)
	}
	if !bytes.Equal(got.Body, entry.Body) {
		t.Fatalf("body %q", got.Body)
	}
	if !reflect.DeepEqual(got.Tags, entry.Tags) {
		t.Fatalf("tags %v", got.Tags)
	}
	if !reflect.DeepEqual(got.Header, entry.Header) {
		t.Fatalf("header %v, want %v", got.Header, entry.Header)
	}
}

func TestEncodeNeverStoresAge(t *testing.T) {
	entry := &Entry{
		StatusCode: 200,
		Header: http.Header{
			"Age":          {"42"},
			"Content-Type": {"text/plain"},
		},
	}
	data, err := encodeEntry(entry)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := decodeEntry(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Header.Get("Age") != "" {
		t.Fatal("the Age header must never be stored")
	}
	if got.Header.Get("Content-Type") == "" {
		t.Fatal("other headers must survive")
	}
}

func TestDecodeCanonicalizesHeaderNames(t *testing.T) {
	data := []byte(`{"created":"2024-05-01T12:00:00Z","status_code":200,"header":{"content-type":["text/plain"],"x-CUSTOM":["1"]}}`)
	got, err := decodeEntry(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Header.Get("Content-Type") != "text/plain" {
		t.Fatal("lookups must be case-insensitive after decoding")
	}
	if got.Header.Get("X-Custom") != "1" {
		t.Fatal("non-canonical stored names must be reachable")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := decodeEntry([]byte("not json")); err == nil {
		t.Fatal("expected an error for a corrupt blob")
	}
}

type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, s.err }
func (s failingStore) Set(context.Context, string, []byte, []string, time.Duration) error {
	return s.err
}
func (s failingStore) EvictByTag(context.Context, string) error { return s.err }

func TestGetEntryMissIsNotAnError(t *testing.T) {
	entry, err := getEntry(context.Background(), NewMemoryStore(), "missing")
	if err != nil || entry != nil {
		t.Fatalf("miss must yield (nil, nil), got (%v, %v)", entry, err)
	}
}

func TestGetEntryPropagatesStoreErrors(t *testing.T) {
	wantErr := errors.New("backend down")
	if _, err := getEntry(context.Background(), failingStore{err: wantErr}, "k"); !errors.Is(err, wantErr) {
		t.Fatalf("expected the store error, got %v", err)
	}
}

func TestStoreEntryRoundTripThroughStore(t *testing.T) {
	store := NewMemoryStore()
	entry := &Entry{
		Created:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		StatusCode: 200,
		Header:     http.Header{"Content-Length": {"2"}},
		Body:       []byte("hi"),
		Tags:       []string{"t"},
	}
	if err := storeEntry(context.Background(), store, "k", entry, time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	got, err := getEntry(context.Background(), store, "k")
	if err != nil || got == nil {
		t.Fatalf("get failed: (%v, %v)", got, err)
	}
	if !bytes.Equal(got.Body, entry.Body) || got.StatusCode != 200 {
		t.Fatal("entry did not survive the store round trip")
	}
}
