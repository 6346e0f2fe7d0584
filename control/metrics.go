// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for the frame server.
// Exposes named counters with lock-free increments and snapshot reads.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names recorded by the server.
const (
	MetricAccepted      = "accepted"
	MetricCompleted     = "completed"
	MetricTimeouts      = "timeouts"
	MetricInvalidated   = "invalidated"
	MetricHandlerErrors = "handler_errors"
	MetricBytesIn       = "bytes_in"
	MetricBytesOut      = "bytes_out"
)

// MetricsRegistry holds named counters.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	updated  atomic.Int64 // unix nanos of last update
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Int64),
	}
}

func (mr *MetricsRegistry) counter(key string) *atomic.Int64 {
	mr.mu.RLock()
	c, ok := mr.counters[key]
	mr.mu.RUnlock()
	if ok {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok = mr.counters[key]; !ok {
		c = new(atomic.Int64)
		mr.counters[key] = c
	}
	return c
}

// Add increments key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.counter(key).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Inc increments key by one.
func (mr *MetricsRegistry) Inc(key string) {
	mr.Add(key, 1)
}

// Get returns the current value of key.
func (mr *MetricsRegistry) Get(key string) int64 {
	return mr.counter(key).Load()
}

// Updated returns the time of the last update, zero if none.
func (mr *MetricsRegistry) Updated() time.Time {
	ns := mr.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v.Load()
	}
	return out
}
