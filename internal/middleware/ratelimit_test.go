package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/observability"
)

func TestRateLimit(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	mw := RateLimit(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}, "/attribution", zap.NewNop(), metrics)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attribution", nil))
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d got %d", i, want[i], codes[i])
		}
	}
	if got := metrics.Count("ratelimit_hits:/attribution"); got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %d", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	mw := RateLimit(RateLimitConfig{Enabled: false, RPS: 0.001, Burst: 1}, "/attribution", zap.NewNop(), metrics)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attribution", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204 got %d", i, rec.Code)
		}
	}
}
