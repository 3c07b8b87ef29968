// Package resilientstore provides a store wrapper that applies failsafe-go
// resilience policies (retry, circuit breaker) to store operations.
//
// A flaky backend should degrade caching, not take the service down with
// it: retries smooth over transient faults, and the circuit breaker stops
// hammering a backend that is clearly unavailable so requests fall back to
// plain upstream execution quickly.
package resilientstore

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/sandrolain/outputcache"
)

// Config holds the resilience policies applied to store operations. Both
// are optional; a zero Config wraps the store without any policy.
type Config struct {
	// RetryPolicy configures retry behavior. If nil, retry is disabled.
	RetryPolicy retrypolicy.RetryPolicy[any]

	// CircuitBreaker configures circuit breaking. If nil, the breaker is
	// disabled.
	CircuitBreaker circuitbreaker.CircuitBreaker[any]
}

// RetryPolicyBuilder creates a pre-configured retry policy builder for
// store operations: up to 3 retries (4 attempts in all) with exponential
// backoff from 10ms to 1s. Customize further before calling Build().
func RetryPolicyBuilder() retrypolicy.Builder[any] {
	return retrypolicy.NewBuilder[any]().
		WithMaxRetries(3).
		WithBackoff(10*time.Millisecond, time.Second)
}

// CircuitBreakerBuilder creates a pre-configured circuit breaker builder
// for store operations: opens after 5 consecutive failures, half-opens
// after 30 seconds, closes after 2 successes. Customize further before
// calling Build().
func CircuitBreakerBuilder() circuitbreaker.Builder[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(30 * time.Second)
}

// Store wraps an outputcache.Store with resilience policies.
type Store struct {
	store    outputcache.Store
	executor failsafe.Executor[any]
}

// New returns a resilient wrapper around store. Policies execute with the
// retry outermost and the circuit breaker innermost, so every attempt,
// retries included, passes through the breaker.
func New(store outputcache.Store, config Config) *Store {
	var policies []failsafe.Policy[any]
	if config.RetryPolicy != nil {
		policies = append(policies, config.RetryPolicy)
	}
	if config.CircuitBreaker != nil {
		policies = append(policies, config.CircuitBreaker)
	}

	s := &Store{store: store}
	if len(policies) > 0 {
		s.executor = failsafe.With(policies...)
	}
	return s
}

type getResult struct {
	value []byte
	ok    bool
}

// Get retrieves the blob under key, retrying per the configured policies.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.executor == nil {
		return s.store.Get(ctx, key)
	}
	result, err := s.executor.WithContext(ctx).Get(func() (any, error) {
		value, ok, err := s.store.Get(ctx, key)
		return getResult{value: value, ok: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := result.(getResult)
	return r.value, r.ok, nil
}

// Set stores the blob, retrying per the configured policies.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if s.executor == nil {
		return s.store.Set(ctx, key, value, tags, ttl)
	}
	return s.executor.WithContext(ctx).Run(func() error {
		return s.store.Set(ctx, key, value, tags, ttl)
	})
}

// EvictByTag evicts the tag, retrying per the configured policies.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	if s.executor == nil {
		return s.store.EvictByTag(ctx, tag)
	}
	return s.executor.WithContext(ctx).Run(func() error {
		return s.store.EvictByTag(ctx, tag)
	})
}
