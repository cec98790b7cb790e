package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/analytics"
	"github.com/patrickwarner/openattribution/internal/attribution"
	"github.com/patrickwarner/openattribution/internal/logic"
	"github.com/patrickwarner/openattribution/internal/middleware"
	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
	"github.com/patrickwarner/openattribution/internal/storage"
)

var tracer = observability.Tracer("api")

// Storage backends reported in attribution responses.
const (
	backendCookie = "cookie"
	backendMirror = "mirror"
	backendMemory = "memory"
)

// AttributionRequest describes one page load reported by a client.
type AttributionRequest struct {
	URL           string `json:"url"`
	Referrer      string `json:"referrer"`
	DeviceID      string `json:"device_id"`
	SessionID     int64  `json:"session_id"`
	LastEventTime int64  `json:"last_event_time"` // epoch ms, 0 when unknown
	EventID       *int64 `json:"event_id"`
}

// AttributionResponse reports the outcome of an attribution cycle.
type AttributionResponse struct {
	NewCampaign  bool                  `json:"new_campaign"`
	ResetSession bool                  `json:"reset_session"`
	SessionID    int64                 `json:"session_id,omitempty"`
	Event        *models.IdentifyEvent `json:"event"`
	Storage      string                `json:"storage"`
	Warnings     []string              `json:"warnings,omitempty"`
}

// parseAttributionRequest reads the request from the query string (GET) or
// a JSON body (POST).
func parseAttributionRequest(r *http.Request) (AttributionRequest, error) {
	var req AttributionRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("decode body: %w", err)
		}
	} else {
		q := r.URL.Query()
		req.URL = q.Get("url")
		req.Referrer = q.Get("referrer")
		req.DeviceID = q.Get("device_id")
		var err error
		if req.SessionID, err = queryInt(q.Get("session_id")); err != nil {
			return req, fmt.Errorf("session_id: %w", err)
		}
		if req.LastEventTime, err = queryInt(q.Get("last_event_time")); err != nil {
			return req, fmt.Errorf("last_event_time: %w", err)
		}
		if v := q.Get("event_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return req, fmt.Errorf("event_id: %w", err)
			}
			req.EventID = &id
		}
	}
	if req.URL == "" {
		return req, errors.New("url required")
	}
	return req, nil
}

func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// AttributionHandler handles GET|POST /attribution. It runs one attribution
// cycle against the visitor's cookies and records the identify event when
// a new campaign is detected.
func (s *Server) AttributionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AttributionHandler",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/attribution"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/attribution"
	method := r.Method

	req, err := parseAttributionRequest(r)
	if err != nil {
		logger.Warn("bad attribution request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	store, backend := s.campaignStore(ctx, w, r, req.DeviceID, logger)
	span.SetAttributes(attribute.String("storage.backend", backend))

	trackerCfg := attribution.Config{
		APIKey:         s.Config.APIKey,
		Options:        s.Options,
		PageHostname:   logic.PageHostname(req.URL),
		SessionTimeout: s.Config.SessionTimeout,
	}
	if req.LastEventTime > 0 {
		last := time.UnixMilli(req.LastEventTime)
		trackerCfg.LastEventTime = &last
	}
	tracker := attribution.NewTracker(trackerCfg, store, logic.NewURLCampaignSource(req.URL, req.Referrer), logger, s.Metrics)
	tracker.SetClock(s.now)
	tracker.Init(ctx)

	resp := AttributionResponse{
		NewCampaign:  tracker.ShouldTrackNewCampaign(),
		ResetSession: tracker.ShouldSetSessionIDOnNewCampaign(),
		SessionID:    req.SessionID,
		Storage:      backend,
		Warnings:     s.Options.Warnings,
	}
	if resp.ResetSession {
		resp.SessionID = s.now().UnixMilli()
	}

	if resp.NewCampaign {
		event := tracker.GenerateCampaignEvent(req.EventID)
		event.DeviceID = req.DeviceID
		event.SessionID = resp.SessionID
		event.Time = s.now().UnixMilli()
		resp.Event = &event
		s.recordIdentify(ctx, span, logger, event)
	}
	span.SetAttributes(attribute.Bool("attribution.new_campaign", resp.NewCampaign))

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("attribution",
			zap.String("device_id", req.DeviceID),
			zap.Bool("new_campaign", resp.NewCampaign),
			zap.Bool("reset_session", resp.ResetSession),
			zap.String("storage", backend))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode attribution response", zap.Error(err))
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// campaignStore picks the cookie backend for a request: the Redis mirror
// for known devices when enabled, otherwise the request's own cookies. A
// backend that fails its round-trip check is replaced by an in-memory jar,
// which lets the cycle run without persisting anything.
func (s *Server) campaignStore(ctx context.Context, w http.ResponseWriter, r *http.Request, deviceID string, logger *zap.Logger) (*storage.CookieStore[models.Campaign], string) {
	opts := s.cookieOptions()

	var (
		jar     storage.CookieJar
		backend string
	)
	if s.Config.CookieMirrorEnabled && s.Store != nil && deviceID != "" {
		jar, backend = storage.NewRedisJar(s.Store, deviceID), backendMirror
	} else {
		jar, backend = storage.NewHTTPJar(w, r), backendCookie
	}

	store := storage.NewCookieStore[models.Campaign](ctx, jar, opts, logger, s.Metrics)
	if store.IsEnabled(ctx) {
		return store, backend
	}
	logger.Warn("cookie storage unavailable, attribution will not persist", zap.String("backend", backend))
	return storage.NewCookieStore[models.Campaign](ctx, storage.NewMemoryJar(), opts, logger, s.Metrics), backendMemory
}

func (s *Server) recordIdentify(ctx context.Context, span trace.Span, logger *zap.Logger, event models.IdentifyEvent) {
	if s.Analytics == nil {
		return
	}
	if err := s.Analytics.RecordIdentify(ctx, event); err != nil {
		if errors.Is(err, analytics.ErrUnavailable) {
			logger.Warn("identify sink unavailable")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "record identify")
		logger.Error("record identify event", zap.Error(err))
	}
}
