package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/observability"
)

// RateLimitConfig configures the shared token bucket.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// RateLimit rejects requests with 429 once the shared bucket is empty.
func RateLimit(cfg RateLimitConfig, endpoint string, logger *zap.Logger, metrics observability.MetricsRegistry) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				LoggerFromRequest(r, logger).Debug("rate limited", zap.String("endpoint", endpoint))
				metrics.IncrementRateLimitHits(endpoint)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
