package outputcache

import (
	"net/http/httptest"
	"testing"
	"time"
)

func keyFor(t *testing.T, setup func(c *Context)) string {
	t.Helper()
	r := httptest.NewRequest("GET", "http://Example.COM/api/items?lang=en&page=2", nil)
	c := newContext(r, time.Minute)
	if setup != nil {
		setup(c)
	}
	return DefaultKeyProvider{}.CreateStorageKey(c)
}

func TestKeyDeterministic(t *testing.T) {
	k1 := keyFor(t, nil)
	k2 := keyFor(t, nil)
	if k1 == "" || k1 != k2 {
		t.Fatalf("keys must be stable, got %q and %q", k1, k2)
	}
}

func TestKeyNormalizesHost(t *testing.T) {
	r1 := httptest.NewRequest("GET", "http://example.com/x", nil)
	r2 := httptest.NewRequest("GET", "http://EXAMPLE.com/x", nil)
	k1 := DefaultKeyProvider{}.CreateStorageKey(newContext(r1, 0))
	k2 := DefaultKeyProvider{}.CreateStorageKey(newContext(r2, 0))
	if k1 != k2 {
		t.Fatalf("host casing must not change the key: %q vs %q", k1, k2)
	}
}

func TestKeyCoversMethodAndPath(t *testing.T) {
	get := DefaultKeyProvider{}.CreateStorageKey(newContext(httptest.NewRequest("GET", "http://example.com/x", nil), 0))
	head := DefaultKeyProvider{}.CreateStorageKey(newContext(httptest.NewRequest("HEAD", "http://example.com/x", nil), 0))
	other := DefaultKeyProvider{}.CreateStorageKey(newContext(httptest.NewRequest("GET", "http://example.com/y", nil), 0))
	if get == head {
		t.Fatal("method must be covered by the key")
	}
	if get == other {
		t.Fatal("path must be covered by the key")
	}
}

func TestKeyIgnoresUncoveredQuery(t *testing.T) {
	k1 := DefaultKeyProvider{}.CreateStorageKey(newContext(httptest.NewRequest("GET", "http://example.com/x?a=1", nil), 0))
	k2 := DefaultKeyProvider{}.CreateStorageKey(newContext(httptest.NewRequest("GET", "http://example.com/x?a=2", nil), 0))
	if k1 != k2 {
		t.Fatal("query values are only covered when a policy asks for them")
	}
}

func TestKeyVaryByQuery(t *testing.T) {
	en := keyFor(t, func(c *Context) { c.AddVaryByQuery("lang") })
	r := httptest.NewRequest("GET", "http://example.com/api/items?lang=fr&page=2", nil)
	c := newContext(r, 0)
	c.AddVaryByQuery("lang")
	fr := DefaultKeyProvider{}.CreateStorageKey(c)
	if en == fr {
		t.Fatal("covered query values must separate keys")
	}

	// Query name matching is case-insensitive.
	upper := keyFor(t, func(c *Context) { c.AddVaryByQuery("LANG") })
	lower := keyFor(t, func(c *Context) { c.AddVaryByQuery("lang") })
	if upper != lower {
		t.Fatalf("query name casing must not matter: %q vs %q", upper, lower)
	}
}

func TestKeyVaryByHeader(t *testing.T) {
	r1 := httptest.NewRequest("GET", "http://example.com/x", nil)
	r1.Header.Set("Accept-Language", "en")
	c1 := newContext(r1, 0)
	c1.AddVaryByHeader("accept-language")

	r2 := httptest.NewRequest("GET", "http://example.com/x", nil)
	r2.Header.Set("Accept-Language", "fr")
	c2 := newContext(r2, 0)
	c2.AddVaryByHeader("Accept-Language")

	k1 := DefaultKeyProvider{}.CreateStorageKey(c1)
	k2 := DefaultKeyProvider{}.CreateStorageKey(c2)
	if k1 == k2 {
		t.Fatal("covered header values must separate keys")
	}

	// Same value under differently cased names must match.
	r3 := httptest.NewRequest("GET", "http://example.com/x", nil)
	r3.Header.Set("Accept-Language", "en")
	c3 := newContext(r3, 0)
	c3.AddVaryByHeader("ACCEPT-LANGUAGE")
	k3 := DefaultKeyProvider{}.CreateStorageKey(c3)
	if k3 != k1 {
		t.Fatalf("header name casing must not matter: %q vs %q", k3, k1)
	}
}

func TestKeyVaryByValue(t *testing.T) {
	k1 := keyFor(t, func(c *Context) { c.SetVaryByValue("tenant", "acme") })
	k2 := keyFor(t, func(c *Context) { c.SetVaryByValue("tenant", "globex") })
	k3 := keyFor(t, func(c *Context) { c.SetVaryByValue("tenant", "acme") })
	if k1 == k2 {
		t.Fatal("vary-by values must separate keys")
	}
	if k1 != k3 {
		t.Fatal("equal vary-by values must produce equal keys")
	}
}

func TestKeyVaryPartsOrderIndependent(t *testing.T) {
	k1 := keyFor(t, func(c *Context) {
		c.AddVaryByQuery("lang")
		c.SetVaryByValue("tenant", "acme")
	})
	k2 := keyFor(t, func(c *Context) {
		c.SetVaryByValue("tenant", "acme")
		c.AddVaryByQuery("lang")
	})
	if k1 != k2 {
		t.Fatalf("vary part registration order must not matter: %q vs %q", k1, k2)
	}
}
