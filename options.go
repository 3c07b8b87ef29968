package outputcache

import (
	"fmt"
	"time"
)

// Option is a function that configures a Middleware.
// Use the With* functions to create Options.
type Option func(*Middleware) error

// WithMaximumBodySize sets the buffering ceiling for captured response
// bodies. A response whose body exceeds the ceiling is still forwarded to the
// client in full, but is not stored.
// Default: DefaultMaximumBodySize
func WithMaximumBodySize(size int64) Option {
	return func(m *Middleware) error {
		if size <= 0 {
			return fmt.Errorf("maximum body size must be positive, got %d", size)
		}
		m.maxBodySize = size
		return nil
	}
}

// WithDefaultExpiration sets the time-to-live applied to stored entries when
// no policy supplies one.
// Default: DefaultExpiration
func WithDefaultExpiration(d time.Duration) Option {
	return func(m *Middleware) error {
		if d <= 0 {
			return fmt.Errorf("default expiration must be positive, got %s", d)
		}
		m.defaultTTL = d
		return nil
	}
}

// WithClock sets the clock used for entry creation times, ages and the
// outbound Date header. Useful for deterministic tests.
// Default: the system clock
func WithClock(c Clock) Option {
	return func(m *Middleware) error {
		if c == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		m.clock = c
		return nil
	}
}

// WithBasePolicies replaces the base policy list evaluated for every request
// before any per-route policies. Passing no policies means requests are only
// cached on routes that attach their own.
// Default: DefaultPolicy()
func WithBasePolicies(policies ...Policy) Option {
	return func(m *Middleware) error {
		m.basePolicies = policies
		return nil
	}
}

// WithKeyProvider sets the KeyProvider used to derive storage keys.
// Default: DefaultKeyProvider
func WithKeyProvider(p KeyProvider) Option {
	return func(m *Middleware) error {
		if p == nil {
			return fmt.Errorf("key provider cannot be nil")
		}
		m.keyProvider = p
		return nil
	}
}

// WithMarkCachedResponses configures whether responses served from cache
// include the X-From-Cache header.
// Default: false
func WithMarkCachedResponses(mark bool) Option {
	return func(m *Middleware) error {
		m.markCached = mark
		return nil
	}
}
