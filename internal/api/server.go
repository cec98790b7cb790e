package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/analytics"
	"github.com/patrickwarner/openattribution/internal/config"
	"github.com/patrickwarner/openattribution/internal/db"
	"github.com/patrickwarner/openattribution/internal/middleware"
	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
	"github.com/patrickwarner/openattribution/internal/storage"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Store     *db.RedisStore
	Analytics analytics.IdentifySink
	Metrics   observability.MetricsRegistry
	Config    config.Config
	Options   models.AttributionOptions
	// ReportDB serves campaign reports; nil disables them.
	ReportDB *sql.DB
	now      func() time.Time
}

// NewServer constructs a Server. store may be nil when the cookie mirror is
// disabled and sink may be nil when identify events are not recorded.
func NewServer(logger *zap.Logger, store *db.RedisStore, sink analytics.IdentifySink, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	opts := cfg.AttributionOptions()
	for _, w := range opts.Warnings {
		logger.Warn("attribution config", zap.String("warning", w))
	}
	if len(opts.Warnings) > 0 {
		metrics.IncrementConfigWarnings(len(opts.Warnings))
	}
	return &Server{
		Logger:    logger,
		Store:     store,
		Analytics: sink,
		Metrics:   metrics,
		Config:    cfg,
		Options:   opts,
		now:       time.Now,
	}
}

// Router wires the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: s.Config.RateLimitEnabled,
		RPS:     s.Config.RateLimitRPS,
		Burst:   s.Config.RateLimitBurst,
	}, "/attribution", s.Logger, s.Metrics)
	r.Handle("/attribution", limit(http.HandlerFunc(s.AttributionHandler))).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/report/campaigns", s.CampaignReportHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// cookieOptions maps configuration onto cookie storage options.
func (s *Server) cookieOptions() storage.Options {
	return storage.Options{
		ExpirationDays: s.Config.CookieExpirationDays,
		Domain:         s.Config.CookieDomain,
		Secure:         s.Config.CookieSecure,
		SameSite:       s.Config.CookieSameSite,
	}
}
