// Campaign Report Tool prints which campaigns visitors were attributed to.
//
// It connects to ClickHouse, reads the identify_events table written by the
// attribution server and prints daily new-campaign counts and the top
// source/medium/campaign combinations.
//
// Usage:
//
//	go run ./tools/campaign_report -days=30 -limit=20
//
// Environment Variables:
//
//	CLICKHOUSE_DSN: ClickHouse connection string (overridden by -clickhouse-dsn flag)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/openattribution/internal/reporting"
)

func main() {
	var (
		days  = flag.Int("days", 7, "Number of days to include in report")
		limit = flag.Int("limit", 10, "Number of sources to list")
		dsn   = flag.String("clickhouse-dsn", getEnv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default"), "ClickHouse DSN")
	)
	flag.Parse()

	db, err := sql.Open("clickhouse", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging ClickHouse: %v\n", err)
		os.Exit(1)
	}

	summary, err := reporting.GenerateAttributionReport(ctx, db, *days, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	printReport(summary)
}

func printReport(summary *reporting.AttributionSummary) {
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                      CAMPAIGN ATTRIBUTION REPORT                  \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Report Period: %d days (ending %s)\n", summary.Days, time.Now().Format("2006-01-02"))
	fmt.Printf("New campaigns: %s\n", formatNumber(summary.TotalNewCampaigns))
	fmt.Printf("Untagged:      %.1f%%\n\n", summary.UntaggedShare)

	if len(summary.DailyMetrics) > 0 {
		fmt.Printf("DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date       | New campaigns |  Devices\n")
		fmt.Printf("-----------|---------------|----------\n")
		for _, d := range summary.DailyMetrics {
			fmt.Printf("%-10s | %13s | %8s\n",
				d.Date.Format("2006-01-02"),
				formatNumber(d.NewCampaigns),
				formatNumber(d.Devices))
		}
		fmt.Printf("\n")
	}

	if len(summary.TopSources) > 0 {
		fmt.Printf("TOP SOURCES\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────\n")
		fmt.Printf("%-16s | %-10s | %-18s | %8s\n", "Source", "Medium", "Campaign", "Events")
		for _, s := range summary.TopSources {
			fmt.Printf("%-16s | %-10s | %-18s | %8s\n",
				orNone(s.Source), orNone(s.Medium), orNone(s.Campaign), formatNumber(s.NewCampaigns))
		}
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// formatNumber formats large integers with comma separators.
// Example: 1234567 becomes "1,234,567"
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
