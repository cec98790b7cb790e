package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/analytics"
	"github.com/patrickwarner/openattribution/internal/observability"
)

func main() {
	logger, err := observability.InitLoggerWithService("query-events")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	var deviceID string
	var dsn string
	flag.StringVar(&deviceID, "device", "", "device ID")
	flag.StringVar(&dsn, "dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN")
	flag.Parse()

	if deviceID == "" {
		fmt.Fprintln(os.Stderr, "device required")
		os.Exit(1)
	}
	if dsn == "" {
		dsn = "clickhouse://default:@localhost:9000/default"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := analytics.InitClickHouse(ctx, dsn, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	events, err := a.IdentifyEventsByDevice(ctx, deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
