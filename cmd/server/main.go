package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/analytics"
	"github.com/patrickwarner/openattribution/internal/api"
	"github.com/patrickwarner/openattribution/internal/config"
	"github.com/patrickwarner/openattribution/internal/db"
	"github.com/patrickwarner/openattribution/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	// The Redis mirror is only needed for clients that cannot hold cookies.
	var store *db.RedisStore
	if cfg.CookieMirrorEnabled {
		var err error
		store, err = db.InitRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
	}

	// Identify events are best-effort: without ClickHouse the service still
	// attributes and returns events to the caller.
	var sink analytics.IdentifySink
	analyticsSvc, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, metricsRegistry)
	if err != nil {
		logger.Warn("clickhouse unavailable, identify events will not be recorded", zap.Error(err))
	} else {
		defer analyticsSvc.Close()
		sink = analyticsSvc
	}

	srv := api.NewServer(logger, store, sink, metricsRegistry, cfg)
	if analyticsSvc != nil {
		srv.ReportDB = analyticsSvc.DB
	}

	addr := ":" + cfg.Port
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(srv.Router(), "openattribution"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Attribution server running",
		zap.String("addr", addr),
		zap.Bool("cookie_mirror", cfg.CookieMirrorEnabled),
		zap.Bool("identify_sink", sink != nil))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
