// Package reporting summarizes recorded campaign identify events. It
// queries the ClickHouse identify_events table for daily new-campaign
// counts and the sources visitors were attributed to.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DailyMetrics counts new-campaign events for one day.
type DailyMetrics struct {
	Date         time.Time `json:"date"`
	NewCampaigns int64     `json:"new_campaigns"` // identify events recorded that day
	Devices      int64     `json:"devices"`       // distinct devices attributed that day
}

// SourceMetrics counts new-campaign events for one source/medium/campaign
// combination. Untagged traffic (referrer only) has empty UTM fields.
type SourceMetrics struct {
	Source       string `json:"source"`
	Medium       string `json:"medium"`
	Campaign     string `json:"campaign"`
	NewCampaigns int64  `json:"new_campaigns"`
	Devices      int64  `json:"devices"`
}

// AttributionSummary is the report for a reporting window.
type AttributionSummary struct {
	Days              int             `json:"days"`
	TotalNewCampaigns int64           `json:"total_new_campaigns"`
	UntaggedShare     float64         `json:"untagged_share"` // share of events without utm_source, 0-100
	DailyMetrics      []DailyMetrics  `json:"daily_metrics"`
	TopSources        []SourceMetrics `json:"top_sources"`
}

// GenerateAttributionReport queries ClickHouse for the last days of
// identify events and returns daily totals and the top sources.
func GenerateAttributionReport(ctx context.Context, db *sql.DB, days int, limit int) (*AttributionSummary, error) {
	summary := &AttributionSummary{Days: days}

	daily, err := getDailyMetrics(ctx, db, days)
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	summary.DailyMetrics = daily
	for _, d := range daily {
		summary.TotalNewCampaigns += d.NewCampaigns
	}

	sources, err := getTopSources(ctx, db, days, limit)
	if err != nil {
		return nil, fmt.Errorf("get top sources: %w", err)
	}
	summary.TopSources = sources

	untagged, err := getUntaggedCount(ctx, db, days)
	if err != nil {
		return nil, fmt.Errorf("get untagged count: %w", err)
	}
	if summary.TotalNewCampaigns > 0 {
		summary.UntaggedShare = float64(untagged) / float64(summary.TotalNewCampaigns) * 100
	}
	return summary, nil
}

func getDailyMetrics(ctx context.Context, db *sql.DB, days int) ([]DailyMetrics, error) {
	query := `
		SELECT
			toDate(timestamp) AS date,
			count() AS new_campaigns,
			uniqExact(device_id) AS devices
		FROM identify_events
		WHERE timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date DESC`

	rows, err := db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var metrics []DailyMetrics
	for rows.Next() {
		var m DailyMetrics
		if err := rows.Scan(&m.Date, &m.NewCampaigns, &m.Devices); err != nil {
			return nil, fmt.Errorf("scan daily metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func getTopSources(ctx context.Context, db *sql.DB, days int, limit int) ([]SourceMetrics, error) {
	query := `
		SELECT
			set['utm_source'] AS source,
			set['utm_medium'] AS medium,
			set['utm_campaign'] AS campaign,
			count() AS new_campaigns,
			uniqExact(device_id) AS devices
		FROM identify_events
		WHERE timestamp >= now() - INTERVAL ? DAY
		GROUP BY source, medium, campaign
		ORDER BY new_campaigns DESC
		LIMIT ?`

	rows, err := db.QueryContext(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("query top sources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sources []SourceMetrics
	for rows.Next() {
		var s SourceMetrics
		if err := rows.Scan(&s.Source, &s.Medium, &s.Campaign, &s.NewCampaigns, &s.Devices); err != nil {
			return nil, fmt.Errorf("scan source metrics: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func getUntaggedCount(ctx context.Context, db *sql.DB, days int) (int64, error) {
	query := `
		SELECT count()
		FROM identify_events
		WHERE timestamp >= now() - INTERVAL ? DAY
			AND NOT mapContains(set, 'utm_source')`

	var n int64
	if err := db.QueryRowContext(ctx, query, days).Scan(&n); err != nil {
		return 0, fmt.Errorf("query untagged count: %w", err)
	}
	return n, nil
}
