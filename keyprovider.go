package outputcache

import (
	"net/http"
	"sort"
	"strings"
)

// A KeyProvider derives the storage key for a request. Returning the empty
// string signals that the request is not keyable and must bypass the cache
// entirely.
type KeyProvider interface {
	CreateStorageKey(c *Context) string
}

// DefaultKeyProvider builds a deterministic fingerprint from the request
// method, scheme, host and path, extended with whatever vary-by state the
// policies accumulated on the Context: selected query keys, request header
// values, route value bindings and the explicit vary-by value bag.
//
// Method, scheme and host are case-normalized; header and query names are
// matched case-insensitively; values are compared case-sensitively. Parts are
// sorted so that two requests with equal covered attributes always produce
// the same key.
type DefaultKeyProvider struct{}

// CreateStorageKey implements KeyProvider.
func (DefaultKeyProvider) CreateStorageKey(c *Context) string {
	r := c.Request()
	if r == nil || r.URL == nil || r.Method == "" {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte('|')
	b.WriteString(scheme)
	b.WriteByte('|')
	b.WriteString(strings.ToLower(r.Host))
	b.WriteByte('|')
	b.WriteString(r.URL.Path)

	parts := collectVaryParts(c, r)
	if len(parts) > 0 {
		sort.Strings(parts)
		b.WriteByte('|')
		b.WriteString(strings.Join(parts, "|"))
	}
	return b.String()
}

func collectVaryParts(c *Context, r *http.Request) []string {
	var parts []string

	if keys := c.VaryQueryKeys(); len(keys) > 0 {
		query := r.URL.Query()
		for _, key := range keys {
			// Query names are matched case-insensitively.
			var values []string
			for name, vs := range query {
				if strings.EqualFold(name, key) {
					values = append(values, vs...)
				}
			}
			sort.Strings(values)
			parts = append(parts, "Q:"+strings.ToLower(key)+"="+strings.Join(values, ","))
		}
	}

	for _, name := range c.VaryHeaderNames() {
		canonical := http.CanonicalHeaderKey(name)
		parts = append(parts, "H:"+canonical+"="+strings.Join(r.Header.Values(canonical), ","))
	}

	for _, name := range c.VaryRouteNames() {
		parts = append(parts, "R:"+name+"="+r.PathValue(name))
	}

	for key, value := range c.VaryValues() {
		parts = append(parts, "V:"+key+"="+value)
	}

	return parts
}
