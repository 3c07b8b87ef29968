// Package outputcache provides an HTTP middleware that memoizes full
// responses keyed by a fingerprint of the request and serves matching
// subsequent requests directly from a pluggable storage backend.
//
// The middleware sits between the transport and the application handler. For
// each request a stack of policies decides between three outcomes: serve from
// cache, execute the downstream handler and store the captured response, or
// pass through untouched. Concurrent requests for the same cache key are
// coalesced so that at most one upstream execution is in flight per key.
//
// Conditional requests (If-None-Match / If-Modified-Since) against a cached
// entry are answered with 304 Not Modified, and requests carrying
// Cache-Control: only-if-cached that cannot be satisfied are answered with
// 504 Gateway Timeout.
package outputcache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// XFromCache is the header added to responses served from the cache
	// when WithMarkCachedResponses is enabled.
	XFromCache = "X-From-Cache"

	headerAge              = "Age"
	headerDate             = "Date"
	headerETag             = "ETag"
	headerLastModified     = "Last-Modified"
	headerContentLength    = "Content-Length"
	headerTransferEncoding = "Transfer-Encoding"
	headerIfNoneMatch      = "If-None-Match"
	headerIfModifiedSince  = "If-Modified-Since"

	methodGET  = "GET"
	methodHEAD = "HEAD"

	cacheControlOnlyIfCached = "only-if-cached"
	cacheControlNoCache      = "no-cache"
	cacheControlNoStore      = "no-store"
)

// DefaultMaximumBodySize is the buffering ceiling applied when no
// WithMaximumBodySize option is given (64 MiB, matching the original
// output caching defaults).
const DefaultMaximumBodySize = 64 * 1024 * 1024

// DefaultExpiration is the entry time-to-live applied when neither a policy
// nor WithDefaultExpiration provides one.
const DefaultExpiration = 60 * time.Second

// ErrFeatureAlreadyInstalled is returned when two output cache middleware
// instances are stacked on the same request. This is a wiring error and is
// surfaced loudly instead of being swallowed.
var ErrFeatureAlreadyInstalled = errors.New("outputcache: cache context already installed on request")

// A Store is the backing storage engine used by the Middleware. Values are
// opaque byte blobs; tags are opaque strings attached at set time to allow
// group invalidation. Implementations must be safe for concurrent use and may
// evict entries at will.
type Store interface {
	// Get returns the blob stored under key.
	// Returns (nil, false, nil) if the key doesn't exist.
	// Returns (nil, false, err) if there was an error retrieving the value.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the given tags and time-to-live.
	// A zero ttl means the entry does not expire on its own.
	Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error
	// EvictByTag removes every entry that was stored with the given tag.
	EvictByTag(ctx context.Context, tag string) error
}

// Middleware is an HTTP output cache. Create one with New and wrap handlers
// with Handler. A single Middleware may be shared across routes; per-route
// policies are appended to the configured base policies.
type Middleware struct {
	store        Store
	basePolicies []Policy
	keyProvider  KeyProvider
	maxBodySize  int64
	defaultTTL   time.Duration
	clock        Clock
	markCached   bool

	// Separate dispatchers so a pending store read never coalesces with a
	// pending upstream execution for the same key.
	lookups    *Dispatcher
	executions *Dispatcher
}

// New returns a Middleware backed by store. By default it carries
// DefaultPolicy as its only base policy, a 64 MiB body ceiling, a 60 second
// default expiration and the system clock. Options can be provided to
// customize the behavior.
func New(store Store, opts ...Option) *Middleware {
	m := &Middleware{
		store:        store,
		basePolicies: []Policy{DefaultPolicy()},
		keyProvider:  DefaultKeyProvider{},
		maxBodySize:  DefaultMaximumBodySize,
		defaultTTL:   DefaultExpiration,
		clock:        systemClock{},
		lookups:      NewDispatcher(),
		executions:   NewDispatcher(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			GetLogger().Error("failed to apply outputcache option", "error", err)
		}
	}
	return m
}

// EvictByTag removes every cached entry stored with the given tag.
func (m *Middleware) EvictByTag(ctx context.Context, tag string) error {
	return m.store.EvictByTag(ctx, tag)
}

// Handler wraps next with the output cache. The policies evaluated for each
// request are the middleware's base policies followed by the given per-route
// policies, in order. If the combined policy set is empty the middleware is
// bypassed entirely and next is returned unwrapped.
func (m *Middleware) Handler(next http.Handler, policies ...Policy) http.Handler {
	combined := make([]Policy, 0, len(m.basePolicies)+len(policies))
	combined = append(combined, m.basePolicies...)
	combined = append(combined, policies...)
	if len(combined) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.serve(w, r, next, combined)
	})
}
