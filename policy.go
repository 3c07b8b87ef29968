package outputcache

import (
	"context"
	"net/http"
	"time"
)

// A Policy guides the middleware through the three phases of a request.
// Hooks run in order for every policy attached to the request; each receives
// the request's Context and may mutate its flags, tags, expiration and
// vary-by state. Policy errors are logged and otherwise ignored so that
// caching never changes the functional behavior of the service.
type Policy interface {
	// CacheRequest runs before any cache interaction. It may toggle the
	// allow-flags, add tags, set the expiration and amend vary-by inputs.
	CacheRequest(ctx context.Context, c *Context) error
	// ServeFromCache runs when a stored entry is a candidate for serving.
	// It may mark the entry not fresh, forcing a miss.
	ServeFromCache(ctx context.Context, c *Context) error
	// ServeResponse runs after the downstream handler, when the response is
	// known. It may revoke storage.
	ServeResponse(ctx context.Context, c *Context) error
}

// defaultPolicy enables caching for GET and HEAD requests without an
// Authorization header, honors request no-store/no-cache directives,
// enforces the expiration as the freshness bound, and stores only plain 200
// responses without Set-Cookie.
type defaultPolicy struct{}

// DefaultPolicy returns the policy installed as the base policy when no
// WithBasePolicies option is given.
func DefaultPolicy() Policy {
	return defaultPolicy{}
}

func (defaultPolicy) CacheRequest(_ context.Context, c *Context) error {
	r := c.Request()
	if r.Method != methodGET && r.Method != methodHEAD {
		return nil
	}
	if r.Header.Get("Authorization") != "" {
		return nil
	}
	if r.Header.Get("Range") != "" {
		return nil
	}
	c.EnableCaching = true
	c.AllowLookup = true
	c.AllowStorage = true
	c.AllowLocking = true

	cc := parseCacheControl(r.Header)
	if cc.has(cacheControlNoStore) {
		c.AllowStorage = false
	}
	if cc.has(cacheControlNoCache) {
		c.AllowLookup = false
	}
	return nil
}

func (defaultPolicy) ServeFromCache(_ context.Context, c *Context) error {
	if c.Expiration > 0 && c.CachedEntryAge() > c.Expiration {
		c.SetEntryFresh(false)
	}
	return nil
}

func (defaultPolicy) ServeResponse(_ context.Context, c *Context) error {
	if c.StatusCode() != http.StatusOK {
		c.AllowStorage = false
		return nil
	}
	h := c.ResponseHeader()
	if h.Get("Set-Cookie") != "" {
		c.AllowStorage = false
		return nil
	}
	if parseCacheControl(h).has(cacheControlNoStore) {
		c.AllowStorage = false
	}
	return nil
}

// noopPolicy provides no-op hooks for the single-phase built-ins to embed.
type noopPolicy struct{}

func (noopPolicy) CacheRequest(context.Context, *Context) error   { return nil }
func (noopPolicy) ServeFromCache(context.Context, *Context) error { return nil }
func (noopPolicy) ServeResponse(context.Context, *Context) error  { return nil }

type expirePolicy struct {
	noopPolicy
	d time.Duration
}

func (p expirePolicy) CacheRequest(_ context.Context, c *Context) error {
	c.Expiration = p.d
	return nil
}

// Expire returns a policy that sets the entry expiration, overriding the
// middleware default.
func Expire(d time.Duration) Policy {
	return expirePolicy{d: d}
}

type tagPolicy struct {
	noopPolicy
	tags []string
}

func (p tagPolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AddTags(p.tags...)
	return nil
}

// Tag returns a policy that attaches the given tags to stored entries,
// enabling group eviction via Middleware.EvictByTag.
func Tag(tags ...string) Policy {
	return tagPolicy{tags: tags}
}

type noCachePolicy struct{ noopPolicy }

func (noCachePolicy) CacheRequest(_ context.Context, c *Context) error {
	c.EnableCaching = false
	return nil
}

// NoCache returns a policy that disables the output cache for the route.
func NoCache() Policy {
	return noCachePolicy{}
}

type noStorePolicy struct{ noopPolicy }

func (noStorePolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AllowStorage = false
	return nil
}

// NoStore returns a policy that disables storage for the route. Cached
// entries may still be served, but responses are never captured.
func NoStore() Policy {
	return noStorePolicy{}
}

type noLockPolicy struct{ noopPolicy }

func (noLockPolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AllowLocking = false
	return nil
}

// NoLock returns a policy that disables per-key execution coalescing for the
// route. Every miss executes the downstream handler independently.
func NoLock() Policy {
	return noLockPolicy{}
}

type varyByQueryPolicy struct {
	noopPolicy
	keys []string
}

func (p varyByQueryPolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AddVaryByQuery(p.keys...)
	return nil
}

// VaryByQuery returns a policy that makes the given query string keys part
// of the cache key.
func VaryByQuery(keys ...string) Policy {
	return varyByQueryPolicy{keys: keys}
}

type varyByHeaderPolicy struct {
	noopPolicy
	names []string
}

func (p varyByHeaderPolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AddVaryByHeader(p.names...)
	return nil
}

// VaryByHeader returns a policy that makes the given request header values
// part of the cache key.
func VaryByHeader(names ...string) Policy {
	return varyByHeaderPolicy{names: names}
}

type varyByRoutePolicy struct {
	noopPolicy
	names []string
}

func (p varyByRoutePolicy) CacheRequest(_ context.Context, c *Context) error {
	c.AddVaryByRoute(p.names...)
	return nil
}

// VaryByRoute returns a policy that makes the given route value bindings
// (http.Request.PathValue) part of the cache key.
func VaryByRoute(names ...string) Policy {
	return varyByRoutePolicy{names: names}
}

type varyByValuePolicy struct {
	noopPolicy
	k, v string
}

func (p varyByValuePolicy) CacheRequest(_ context.Context, c *Context) error {
	c.SetVaryByValue(p.k, p.v)
	return nil
}

// VaryByValue returns a policy that makes an explicit key/value pair part
// of the cache key.
func VaryByValue(key, value string) Policy {
	return varyByValuePolicy{k: key, v: value}
}

// CacheRequestFunc adapts a function to a Policy whose other hooks are
// no-ops.
type CacheRequestFunc func(ctx context.Context, c *Context) error

func (f CacheRequestFunc) CacheRequest(ctx context.Context, c *Context) error { return f(ctx, c) }
func (CacheRequestFunc) ServeFromCache(context.Context, *Context) error       { return nil }
func (CacheRequestFunc) ServeResponse(context.Context, *Context) error        { return nil }

// ServeFromCacheFunc adapts a function to a Policy whose other hooks are
// no-ops.
type ServeFromCacheFunc func(ctx context.Context, c *Context) error

func (ServeFromCacheFunc) CacheRequest(context.Context, *Context) error { return nil }
func (f ServeFromCacheFunc) ServeFromCache(ctx context.Context, c *Context) error {
	return f(ctx, c)
}
func (ServeFromCacheFunc) ServeResponse(context.Context, *Context) error { return nil }

// ServeResponseFunc adapts a function to a Policy whose other hooks are
// no-ops.
type ServeResponseFunc func(ctx context.Context, c *Context) error

func (ServeResponseFunc) CacheRequest(context.Context, *Context) error   { return nil }
func (ServeResponseFunc) ServeFromCache(context.Context, *Context) error { return nil }
func (f ServeResponseFunc) ServeResponse(ctx context.Context, c *Context) error {
	return f(ctx, c)
}
