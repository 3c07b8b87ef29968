// Package metrics provides an interface for collecting output cache
// metrics. It defines a generic interface that can be implemented by
// various metrics systems (Prometheus, OpenTelemetry, Datadog, etc.)
// without adding dependencies to the core outputcache package.
package metrics

import (
	"time"
)

// Collector defines the interface for metrics collection.
type Collector interface {
	// RecordStoreOperation records a store operation.
	// Parameters:
	//   - operation: "get", "set", or "evict_by_tag"
	//   - backend: store backend name (e.g., "memory", "redis", "leveldb")
	//   - result: operation result (e.g., "hit", "miss", "success", "error")
	//   - duration: operation duration
	RecordStoreOperation(operation, backend, result string, duration time.Duration)

	// RecordEntrySize records the size of a stored entry in bytes.
	RecordEntrySize(backend string, sizeBytes int64)
}

// NoOpCollector implements Collector with no-op operations. It is the
// default collector when metrics are not enabled, ensuring zero overhead
// for users who don't need them.
type NoOpCollector struct{}

// RecordStoreOperation does nothing (no-op implementation).
func (n *NoOpCollector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
}

// RecordEntrySize does nothing (no-op implementation).
func (n *NoOpCollector) RecordEntrySize(backend string, sizeBytes int64) {}

// DefaultCollector is the default no-op collector used when metrics are
// not enabled.
var DefaultCollector Collector = &NoOpCollector{}
