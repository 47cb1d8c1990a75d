// Package metrics exports broker activity to Prometheus.
//
// Metrics are opt-in: until InitRegistry is called every constructor
// returns nil and every recorder method on a nil receiver is a no-op, so
// callers never branch on whether metrics are enabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric name.
const Namespace = "dbroker"

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the registry with Go runtime and process collectors.
// Calling it again replaces the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mu.Lock()
	registry = reg
	mu.Unlock()
	return reg
}

// GetRegistry returns the registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry was called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Reset disables metrics. Intended for tests.
func Reset() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}
