package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attribution_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// attribution cycles labelled by outcome (new_campaign, unchanged)
	AttributionCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_cycles_total",
			Help: "Total attribution cycles evaluated",
		},
		[]string{"outcome"},
	)

	// identify events handed to the sink, labelled by status
	IdentifyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_identify_events_total",
			Help: "Total campaign identify events emitted",
		},
		[]string{"status"},
	)

	// more than one cookie found for a single key
	CookieDuplicates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_cookie_duplicates_total",
			Help: "Total reads that found duplicate cookies for a key",
		},
		[]string{"strategy"},
	)

	// cookie values that could not be decoded
	CookieDecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_cookie_decode_failures_total",
			Help: "Total cookie values that failed to decode",
		},
		[]string{"reason"},
	)

	// storage operations that failed and degraded to a no-op or miss
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_storage_errors_total",
			Help: "Total cookie storage errors",
		},
		[]string{"operation"},
	)

	// read strategy chosen when a cookie store is built
	StorageBackends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_storage_backend_total",
			Help: "Cookie read strategies selected",
		},
		[]string{"backend"},
	)

	// configuration problems that were tolerated
	ConfigWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attribution_config_warnings_total",
			Help: "Total attribution configuration warnings",
		},
	)

	// requests rejected by the rate limiter
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_ratelimit_hits_total",
			Help: "Total requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		AttributionCycles,
		IdentifyEvents,
		CookieDuplicates,
		CookieDecodeFailures,
		StorageErrors,
		StorageBackends,
		ConfigWarnings,
		RateLimitHits,
	)
}
