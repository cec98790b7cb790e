package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/middleware"
	"github.com/patrickwarner/openattribution/internal/reporting"
)

const (
	defaultReportDays  = 7
	maxReportDays      = 365
	defaultReportLimit = 10
)

// CampaignReportHandler handles GET /report/campaigns requests. It
// summarizes the identify events recorded over the last days.
//
// Query Parameters:
//   - days: Number of days to include in the report (default: 7, max: 365)
//   - limit: Number of top sources to return (default: 10)
func (s *Server) CampaignReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/report/campaigns"
	method := r.Method
	logger := middleware.LoggerFromRequest(r, s.Logger)

	fail := func(code int, msg string) {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(code))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, msg, code)
	}

	if s.ReportDB == nil {
		logger.Error("clickhouse unavailable")
		fail(http.StatusServiceUnavailable, "analytics database unavailable")
		return
	}

	days, ok := positiveParam(r, "days", defaultReportDays)
	if !ok {
		fail(http.StatusBadRequest, "invalid days parameter")
		return
	}
	if days > maxReportDays {
		days = maxReportDays
	}
	limit, ok := positiveParam(r, "limit", defaultReportLimit)
	if !ok {
		fail(http.StatusBadRequest, "invalid limit parameter")
		return
	}

	summary, err := reporting.GenerateAttributionReport(r.Context(), s.ReportDB, days, limit)
	if err != nil {
		logger.Error("failed to generate campaign report", zap.Int("days", days), zap.Error(err))
		fail(http.StatusInternalServerError, "failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.Error("failed to encode campaign report response", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}

	logger.Info("campaign report generated",
		zap.Int("days", days),
		zap.Int64("new_campaigns", summary.TotalNewCampaigns))

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// positiveParam reads a positive integer query parameter, returning def
// when the parameter is absent.
func positiveParam(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
