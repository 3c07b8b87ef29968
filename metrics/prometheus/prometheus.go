// Package prometheus provides a Prometheus metrics.Collector and an
// instrumented Store wrapper. It is optional and only imported when
// Prometheus metrics are needed.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sandrolain/outputcache"
	"github.com/sandrolain/outputcache/metrics"
)

// Metric result constants.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultSuccess = "success"
	resultError   = "error"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	storeOperations *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	entrySize       *prometheus.HistogramVec
}

// CollectorConfig provides configuration options for the Prometheus
// collector.
type CollectorConfig struct {
	// Registry is the Prometheus registry to use. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace for metrics (default: "outputcache").
	Namespace string

	// Subsystem for metrics (optional).
	Subsystem string

	// ConstLabels are labels added to all metrics.
	ConstLabels prometheus.Labels
}

// NewCollector creates a Prometheus collector with the default registry.
func NewCollector() *Collector {
	return NewCollectorWithConfig(CollectorConfig{})
}

// NewCollectorWithRegistry creates a Prometheus collector registering on
// reg.
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(CollectorConfig{Registry: reg})
}

// NewCollectorWithConfig creates a Prometheus collector with custom
// configuration.
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "outputcache"
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		storeOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operations_total",
				Help:        "Total number of cache store operations",
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store_backend", "result"},
		),
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operation_duration_seconds",
				Help:        "Duration of cache store operations in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store_backend"},
		),
		entrySize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "entry_size_bytes",
				Help:        "Size of stored cache entries in bytes",
				Buckets:     prometheus.ExponentialBuckets(256, 4, 10),
				ConstLabels: config.ConstLabels,
			},
			[]string{"store_backend"},
		),
	}
}

// RecordStoreOperation implements metrics.Collector.
func (c *Collector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
	c.storeOperations.WithLabelValues(operation, backend, result).Inc()
	c.opDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordEntrySize implements metrics.Collector.
func (c *Collector) RecordEntrySize(backend string, sizeBytes int64) {
	c.entrySize.WithLabelValues(backend).Observe(float64(sizeBytes))
}

// InstrumentedStore wraps an outputcache.Store and records metrics for all
// store operations.
type InstrumentedStore struct {
	underlying outputcache.Store
	collector  metrics.Collector
	backend    string // backend name: "memory", "redis", "leveldb", etc.
}

// NewInstrumentedStore creates a store wrapper recording metrics for every
// operation.
//
// Parameters:
//   - store: the underlying store implementation to wrap
//   - backend: the name of the store backend (e.g., "disk", "redis")
//   - collector: the metrics collector (if nil, uses metrics.DefaultCollector)
func NewInstrumentedStore(store outputcache.Store, backend string, collector metrics.Collector) *InstrumentedStore {
	if collector == nil {
		collector = metrics.DefaultCollector
	}
	return &InstrumentedStore{
		underlying: store,
		collector:  collector,
		backend:    backend,
	}
}

// Get retrieves a value from the store with metrics recording.
func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.underlying.Get(ctx, key)
	duration := time.Since(start)

	result := resultMiss
	if err != nil {
		result = resultError
	} else if ok {
		result = resultHit
	}
	s.collector.RecordStoreOperation("get", s.backend, result, duration)
	return value, ok, err
}

// Set stores a value with metrics recording.
func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	start := time.Now()
	err := s.underlying.Set(ctx, key, value, tags, ttl)
	duration := time.Since(start)

	result := resultSuccess
	if err != nil {
		result = resultError
	}
	s.collector.RecordStoreOperation("set", s.backend, result, duration)
	if err == nil {
		s.collector.RecordEntrySize(s.backend, int64(len(value)))
	}
	return err
}

// EvictByTag evicts a tag with metrics recording.
func (s *InstrumentedStore) EvictByTag(ctx context.Context, tag string) error {
	start := time.Now()
	err := s.underlying.EvictByTag(ctx, tag)
	duration := time.Since(start)

	result := resultSuccess
	if err != nil {
		result = resultError
	}
	s.collector.RecordStoreOperation("evict_by_tag", s.backend, result, duration)
	return err
}
