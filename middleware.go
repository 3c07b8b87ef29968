package outputcache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// serve runs the request-processing state machine: policy evaluation,
// coalesced lookup, coalesced or unlocked execute-and-store, and
// pass-through.
func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler, policies []Policy) {
	if FromRequest(r) != nil {
		GetLogger().Error("output cache middleware stacked twice on one request",
			"url", r.URL.String(), "error", ErrFeatureAlreadyInstalled)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	c := newContext(r, m.defaultTTL)
	r = r.WithContext(context.WithValue(r.Context(), featureKey, c))
	c.req = r
	ctx := r.Context()

	for _, p := range policies {
		if err := p.CacheRequest(ctx, c); err != nil {
			GetLogger().Warn("cache request policy failed", "url", r.URL.String(), "error", err)
		}
	}

	if c.EnableCaching && c.AllowLookup {
		key := m.storageKey(c)
		if key == "" {
			GetLogger().Debug("request not keyable, passing through", "url", r.URL.String())
			next.ServeHTTP(w, r)
			return
		}

		entry, _, err := m.lookups.Schedule(ctx, key, func() (*Entry, error) {
			return getEntry(ctx, m.store, key)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			GetLogger().Warn("cache lookup failed, treating as miss", "key", key, "error", err)
			entry = nil
		}
		if entry != nil && m.serveCached(w, r, c, entry, policies) {
			return
		}

		if parseCacheControl(r.Header).has(cacheControlOnlyIfCached) {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
	}

	if c.EnableCaching && c.AllowStorage {
		key := m.storageKey(c)
		if key == "" {
			GetLogger().Debug("request not keyable, passing through", "url", r.URL.String())
			next.ServeHTTP(w, r)
			return
		}

		if c.AllowLocking {
			entry, executed, err := m.executions.Schedule(ctx, key, func() (*Entry, error) {
				return m.executeAndStore(w, r, c, next, policies, key)
			})
			if executed {
				// This request ran the handler and has already been served.
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				GetLogger().Warn("coalesced execution failed", "key", key, "error", err)
			} else if m.serveCached(w, r, c, entry, policies) {
				return
			}
			// The shared execution produced nothing servable for this
			// request; run the handler without interception. The locking
			// branch never falls through to a second execute-and-store.
			next.ServeHTTP(w, r)
			return
		}

		if _, err := m.executeAndStore(w, r, c, next, policies, key); err != nil {
			GetLogger().Warn("unlocked execution failed", "key", key, "error", err)
		}
		return
	}

	next.ServeHTTP(w, r)
}

func (m *Middleware) storageKey(c *Context) string {
	if !c.keyed {
		c.key = m.keyProvider.CreateStorageKey(c)
		c.keyed = true
	}
	return c.key
}

// serveCached attempts to answer the request from entry. It returns false
// when the entry is absent or not fresh, leaving the caller to continue as a
// miss.
func (m *Middleware) serveCached(w http.ResponseWriter, r *http.Request, c *Context, entry *Entry, policies []Policy) bool {
	if entry == nil {
		return false
	}
	c.entry = entry
	c.responseTime = m.clock.Now()

	rawAge := c.responseTime.Sub(entry.Created)
	c.entryAge = rawAge
	if c.entryAge < 0 {
		c.entryAge = 0
	}
	// A non-positive raw age means the clocks disagree; don't serve.
	c.fresh = rawAge > 0

	ctx := r.Context()
	for _, p := range policies {
		if err := p.ServeFromCache(ctx, c); err != nil {
			GetLogger().Warn("serve from cache policy failed", "error", err)
		}
	}
	if !c.fresh {
		return false
	}

	if isNotModified(r.Header, entry.Header) {
		writeNotModified(w, entry)
		return true
	}

	h := w.Header()
	for name, values := range entry.Header {
		h[name] = append([]string(nil), values...)
	}
	h.Set(headerAge, strconv.FormatInt(int64(c.entryAge/time.Second), 10))
	if m.markCached {
		h.Set(XFromCache, "1")
	}
	w.WriteHeader(entry.StatusCode)

	if r.Method != methodHEAD && len(entry.Body) > 0 {
		if _, err := io.Copy(w, bytes.NewReader(entry.Body)); err != nil {
			// The client went away mid-stream; the server tears the
			// connection down on its own. The request counts as served.
			GetLogger().Debug("cached body copy aborted", "error", err)
		}
	}
	return true
}

// executeAndStore installs the capture writer, invokes the downstream
// handler, runs ServeResponse hooks, finalizes headers and body, and on
// success returns the captured entry (nil if storage was disallowed
// mid-flight). The initiating request is fully served when this returns.
func (m *Middleware) executeAndStore(w http.ResponseWriter, r *http.Request, c *Context, next http.Handler, policies []Policy, key string) (*Entry, error) {
	c.responseTime = m.clock.Now()
	cw := newCaptureWriter(w, m.maxBodySize, func() {
		c.started = true
		m.finalizeHeaders(c)
	})
	c.capture = cw

	next.ServeHTTP(cw, r)

	ctx := r.Context()
	for _, p := range policies {
		if err := p.ServeResponse(ctx, c); err != nil {
			GetLogger().Warn("serve response policy failed", "error", err)
		}
	}

	if !c.started {
		// The handler returned without writing; latch now so the snapshot
		// and outbound Date still happen.
		c.started = true
		m.finalizeHeaders(c)
	}
	m.finalizeBody(ctx, c, key)
	return c.entry, nil
}

// finalizeHeaders runs once, at the ResponseStarted transition: it stamps
// the outbound Date and snapshots status, tags and headers (except Age) into
// the entry under capture.
func (m *Middleware) finalizeHeaders(c *Context) {
	if !c.AllowStorage {
		return
	}
	h := c.capture.Header()
	h.Set(headerDate, c.responseTime.UTC().Format(http.TimeFormat))

	header := make(http.Header, len(h))
	for name, values := range h {
		if name == headerAge {
			continue
		}
		header[name] = append([]string(nil), values...)
	}
	c.entry = &Entry{
		Created:    c.responseTime,
		StatusCode: c.capture.Status(),
		Header:     header,
		Tags:       append([]string(nil), c.Tags()...),
	}
}

// finalizeBody commits the buffered body to the entry and persists it,
// unless storage was revoked, the buffer ceiling was breached, or the
// declared Content-Length disagrees with what was captured.
func (m *Middleware) finalizeBody(ctx context.Context, c *Context, key string) {
	if !c.AllowStorage || c.entry == nil {
		c.entry = nil
		c.capture.DisableBuffering()
		return
	}
	if !c.capture.BufferingEnabled() {
		GetLogger().Debug("response body exceeded buffering ceiling, not storing", "key", key)
		c.entry = nil
		return
	}

	body := c.capture.CachedBody()
	if declared := c.entry.Header.Get(headerContentLength); declared != "" {
		length, err := strconv.ParseInt(declared, 10, 64)
		if err != nil || length != int64(len(body)) {
			// An empty body on a HEAD request is the one tolerated
			// disagreement: the entry keeps the length a GET would have.
			if !(len(body) == 0 && c.Request().Method == methodHEAD) {
				GetLogger().Warn("Content-Length disagrees with captured body, not storing",
					"key", key, "declared", declared, "captured", len(body))
				c.entry = nil
				c.capture.DisableBuffering()
				return
			}
		}
	} else if c.entry.Header.Get(headerTransferEncoding) == "" {
		c.entry.Header.Set(headerContentLength, strconv.Itoa(len(body)))
	}

	c.entry.Body = body
	if err := storeEntry(ctx, m.store, key, c.entry, c.Expiration); err != nil {
		GetLogger().Warn("failed to store cache entry", "key", key, "error", err)
	}
}
