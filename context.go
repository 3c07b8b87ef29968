package outputcache

import (
	"net/http"
	"time"
)

type featureKeyType struct{}

var featureKey featureKeyType

// Context is the per-request coordination record. It is created when a
// request enters the middleware and discarded when the request ends. Policies
// receive it through their hooks; nested handlers can reach it with
// FromRequest.
//
// A Context is owned by a single request and must not be shared across
// requests.
type Context struct {
	// EnableCaching is the master switch; when false the middleware neither
	// looks up nor stores anything for this request.
	EnableCaching bool
	// AllowLookup permits serving this request from a cached entry.
	AllowLookup bool
	// AllowStorage permits storing the captured response. Policies may
	// revoke it at any point up to finalization; once false during capture,
	// no store write occurs.
	AllowStorage bool
	// AllowLocking permits coalescing this request's upstream execution
	// with concurrent requests for the same key.
	AllowLocking bool
	// Expiration is the time-to-live applied to the stored entry. It is
	// preset to the middleware's default and may be overridden by policies.
	Expiration time.Duration

	req  *http.Request
	tags []string

	varyQuery  []string
	varyHeader []string
	varyRoute  []string
	varyValues map[string]string

	key   string
	keyed bool

	entry        *Entry
	responseTime time.Time
	entryAge     time.Duration
	fresh        bool

	started bool
	capture *captureWriter
}

func newContext(r *http.Request, defaultTTL time.Duration) *Context {
	return &Context{
		req:        r,
		Expiration: defaultTTL,
	}
}

// FromRequest returns the cache Context installed on the request, or nil if
// the request is not passing through an output cache middleware.
func FromRequest(r *http.Request) *Context {
	c, _ := r.Context().Value(featureKey).(*Context)
	return c
}

// Request returns the request this context belongs to.
func (c *Context) Request() *http.Request {
	return c.req
}

// AddTags accumulates tags attached to the stored entry for group eviction.
func (c *Context) AddTags(tags ...string) {
	c.tags = append(c.tags, tags...)
}

// Tags returns the tags accumulated so far.
func (c *Context) Tags() []string {
	return c.tags
}

// AddVaryByQuery adds query string keys whose values contribute to the
// cache key.
func (c *Context) AddVaryByQuery(keys ...string) {
	c.varyQuery = append(c.varyQuery, keys...)
}

// AddVaryByHeader adds request header names whose values contribute to the
// cache key. Names are matched case-insensitively.
func (c *Context) AddVaryByHeader(names ...string) {
	c.varyHeader = append(c.varyHeader, names...)
}

// AddVaryByRoute adds route value names (http.Request.PathValue bindings)
// whose values contribute to the cache key.
func (c *Context) AddVaryByRoute(names ...string) {
	c.varyRoute = append(c.varyRoute, names...)
}

// SetVaryByValue records an explicit key/value pair that contributes to the
// cache key.
func (c *Context) SetVaryByValue(key, value string) {
	if c.varyValues == nil {
		c.varyValues = make(map[string]string)
	}
	c.varyValues[key] = value
}

// VaryQueryKeys returns the query keys contributing to the cache key.
func (c *Context) VaryQueryKeys() []string { return c.varyQuery }

// VaryHeaderNames returns the header names contributing to the cache key.
func (c *Context) VaryHeaderNames() []string { return c.varyHeader }

// VaryRouteNames returns the route value names contributing to the cache key.
func (c *Context) VaryRouteNames() []string { return c.varyRoute }

// VaryValues returns the explicit vary-by value bag.
func (c *Context) VaryValues() map[string]string { return c.varyValues }

// CachedEntry returns the entry chosen for this request: a hit from the
// store on the lookup path, or the in-progress capture during execution.
// Nil when neither exists.
func (c *Context) CachedEntry() *Entry {
	return c.entry
}

// CachedEntryAge returns the age of the candidate entry relative to the
// request's response time. Never negative.
func (c *Context) CachedEntryAge() time.Duration {
	return c.entryAge
}

// ResponseTime returns the time the middleware started serving or capturing
// the response.
func (c *Context) ResponseTime() time.Time {
	return c.responseTime
}

// IsEntryFresh reports whether the candidate entry is considered fresh.
// ServeFromCache hooks may clear it with SetEntryFresh.
func (c *Context) IsEntryFresh() bool {
	return c.fresh
}

// SetEntryFresh marks the candidate entry fresh or stale. A stale entry is
// not served and the request proceeds as a miss.
func (c *Context) SetEntryFresh(fresh bool) {
	c.fresh = fresh
}

// ResponseStarted reports whether the first response byte (or header) has
// been written during capture, or the handler has returned without writing.
// It transitions false to true at most once.
func (c *Context) ResponseStarted() bool {
	return c.started
}

// ResponseHeader returns the outbound response headers during capture, or
// nil if the request is not executing under capture.
func (c *Context) ResponseHeader() http.Header {
	if c.capture == nil {
		return nil
	}
	return c.capture.Header()
}

// StatusCode returns the response status captured so far (200 if the handler
// has not set one), or 0 if the request is not executing under capture.
func (c *Context) StatusCode() int {
	if c.capture == nil {
		return 0
	}
	return c.capture.Status()
}
