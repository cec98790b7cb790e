package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry counts calls so tests can assert on diagnostics.
// Keys are "<method>:<label>", e.g. "cookie_duplicates:header".
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

func (m *MockMetricsRegistry) add(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key] += n
}

// Count returns how many times key was recorded.
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.add("requests:"+endpoint+":"+status, 1)
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
}

func (m *MockMetricsRegistry) IncrementAttributionCycles(outcome string) {
	m.add("attribution_cycles:"+outcome, 1)
}

func (m *MockMetricsRegistry) IncrementIdentifyEvents(status string) {
	m.add("identify_events:"+status, 1)
}

func (m *MockMetricsRegistry) IncrementCookieDuplicates(strategy string) {
	m.add("cookie_duplicates:"+strategy, 1)
}

func (m *MockMetricsRegistry) IncrementCookieDecodeFailures(reason string) {
	m.add("cookie_decode_failures:"+reason, 1)
}

func (m *MockMetricsRegistry) IncrementStorageErrors(operation string) {
	m.add("storage_errors:"+operation, 1)
}

func (m *MockMetricsRegistry) IncrementStorageBackend(backend string) {
	m.add("storage_backend:"+backend, 1)
}

func (m *MockMetricsRegistry) IncrementConfigWarnings(count int) {
	m.add("config_warnings", count)
}

func (m *MockMetricsRegistry) IncrementRateLimitHits(endpoint string) {
	m.add("ratelimit_hits:"+endpoint, 1)
}
