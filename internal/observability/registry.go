package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Attribution metrics
	IncrementAttributionCycles(outcome string)
	IncrementIdentifyEvents(status string)

	// Cookie storage diagnostics
	IncrementCookieDuplicates(strategy string)
	IncrementCookieDecodeFailures(reason string)
	IncrementStorageErrors(operation string)
	IncrementStorageBackend(backend string)

	// Configuration
	IncrementConfigWarnings(count int)

	// Rate limiting metrics
	IncrementRateLimitHits(endpoint string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Attribution metrics
func (r *PrometheusRegistry) IncrementAttributionCycles(outcome string) {
	AttributionCycles.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementIdentifyEvents(status string) {
	IdentifyEvents.WithLabelValues(status).Inc()
}

// Cookie storage diagnostics
func (r *PrometheusRegistry) IncrementCookieDuplicates(strategy string) {
	CookieDuplicates.WithLabelValues(strategy).Inc()
}

func (r *PrometheusRegistry) IncrementCookieDecodeFailures(reason string) {
	CookieDecodeFailures.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementStorageErrors(operation string) {
	StorageErrors.WithLabelValues(operation).Inc()
}

func (r *PrometheusRegistry) IncrementStorageBackend(backend string) {
	StorageBackends.WithLabelValues(backend).Inc()
}

func (r *PrometheusRegistry) IncrementConfigWarnings(count int) {
	ConfigWarnings.Add(float64(count))
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitHits(endpoint string) {
	RateLimitHits.WithLabelValues(endpoint).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementAttributionCycles(outcome string)                            {}
func (r *NoOpRegistry) IncrementIdentifyEvents(status string)                                {}
func (r *NoOpRegistry) IncrementCookieDuplicates(strategy string)                            {}
func (r *NoOpRegistry) IncrementCookieDecodeFailures(reason string)                          {}
func (r *NoOpRegistry) IncrementStorageErrors(operation string)                              {}
func (r *NoOpRegistry) IncrementStorageBackend(backend string)                               {}
func (r *NoOpRegistry) IncrementConfigWarnings(count int)                                    {}
func (r *NoOpRegistry) IncrementRateLimitHits(endpoint string)                               {}
