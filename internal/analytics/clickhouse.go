package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
)

// IdentifySink receives campaign identify events produced by attribution
// cycles. Implementations return ErrUnavailable when their backing store
// is not configured.
type IdentifySink interface {
	RecordIdentify(ctx context.Context, event models.IdentifyEvent) error
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// IdentifyRecord mirrors a row in the identify_events table.
type IdentifyRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	DeviceID  string            `json:"device_id"`
	SessionID int64             `json:"session_id"`
	EventID   *int64            `json:"event_id"`
	Set       map[string]string `json:"set"`
	SetOnce   map[string]string `json:"set_once"`
	Unset     []string          `json:"unset"`
}

const createIdentifyTable = `CREATE TABLE IF NOT EXISTS identify_events (
       timestamp   DateTime64(3),
       device_id   String,
       session_id  Int64,
       event_id    Nullable(Int64),
       set         Map(String, String),
       set_once    Map(String, String),
       unset       Array(String)
   ) ENGINE=MergeTree() ORDER BY (device_id, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the identify_events
// table exists.
func InitClickHouse(ctx context.Context, dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	driverName, err := otelsql.Register("clickhouse",
		otelsql.WithAttributes(attribute.String("db.system", "clickhouse")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	a, err := newAnalytics(ctx, db, metrics)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Connected to ClickHouse")
	return a, nil
}

// newAnalytics checks the connection and prepares the schema. db is closed
// when either step fails.
func newAnalytics(ctx context.Context, db *sql.DB, metrics observability.MetricsRegistry) (*Analytics, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createIdentifyTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordIdentify inserts one identify event row.
func (a *Analytics) RecordIdentify(ctx context.Context, event models.IdentifyEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}

	ts := time.Now()
	if event.Time > 0 {
		ts = time.UnixMilli(event.Time)
	}

	var eventID sql.NullInt64
	if event.EventID != nil {
		eventID.Int64 = *event.EventID
		eventID.Valid = true
	}

	props := event.UserProperties
	unset := make([]string, 0, len(props.Unset))
	for _, key := range models.CampaignKeys() {
		if _, ok := props.Unset[key]; ok {
			unset = append(unset, key)
		}
	}

	stmt := `INSERT INTO identify_events (timestamp, device_id, session_id, event_id, set, set_once, unset) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ts, event.DeviceID, event.SessionID, eventID, props.Set, props.SetOnce, unset); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("device_id", event.DeviceID))
		a.recordStatus("failed")
		return fmt.Errorf("insert identify event: %w", err)
	}
	a.recordStatus("recorded")
	return nil
}

func (a *Analytics) recordStatus(status string) {
	if a.Metrics != nil {
		a.Metrics.IncrementIdentifyEvents(status)
	}
}

// IdentifyEventsByDevice returns the identify events recorded for a device,
// oldest first.
func (a *Analytics) IdentifyEventsByDevice(ctx context.Context, deviceID string) ([]IdentifyRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, device_id, session_id, event_id, set, set_once, unset FROM identify_events WHERE device_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query identify events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var records []IdentifyRecord
	for rows.Next() {
		var rec IdentifyRecord
		if err := rows.Scan(&rec.Timestamp, &rec.DeviceID, &rec.SessionID, &rec.EventID, &rec.Set, &rec.SetOnce, &rec.Unset); err != nil {
			return nil, fmt.Errorf("scan identify event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

// Ping checks connectivity.
func (a *Analytics) Ping(ctx context.Context) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	return a.DB.PingContext(ctx)
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
