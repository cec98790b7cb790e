package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/middleware"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the status of the service and of the backends it
// was started with. A failing backend turns the response into a 503.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	checks := map[string]string{}
	healthy := true
	check := func(name string, p pinger) {
		if err := p.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.String("backend", name), zap.Error(err))
			checks[name] = "down"
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if s.Store != nil {
		check("redis", s.Store)
	}
	if p, ok := s.Analytics.(pinger); ok {
		check("clickhouse", p)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})

	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(code))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
