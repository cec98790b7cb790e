package analytics

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openattribution/internal/logic"
	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
)

// clickhouseArgs lets map and slice arguments reach the mock unchanged,
// as the ClickHouse driver accepts them natively.
type clickhouseArgs struct{}

func (clickhouseArgs) ConvertValue(v any) (driver.Value, error) {
	switch v.(type) {
	case map[string]string, []string:
		return v, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockAnalytics(t *testing.T) (*Analytics, sqlmock.Sqlmock, *observability.MockMetricsRegistry) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(clickhouseArgs{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	metrics := observability.NewMockMetricsRegistry()
	return &Analytics{DB: db, Metrics: metrics}, mock, metrics
}

func TestRecordIdentify(t *testing.T) {
	a, mock, metrics := newMockAnalytics(t)

	event := logic.CreateCampaignEvent(models.Campaign{"utm_source": "google", "utm_medium": "cpc"}, models.AttributionOptions{})
	id := int64(7)
	event.EventID = &id
	event.DeviceID = "device-1"
	event.SessionID = 1700000000000
	event.Time = 1700000000123

	props := event.UserProperties
	unset := make([]string, 0, len(props.Unset))
	for _, key := range models.CampaignKeys() {
		if _, ok := props.Unset[key]; ok {
			unset = append(unset, key)
		}
	}

	mock.ExpectExec("INSERT INTO identify_events").
		WithArgs(time.UnixMilli(event.Time), "device-1", int64(1700000000000), int64(7), props.Set, props.SetOnce, unset).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.RecordIdentify(context.Background(), event))
	assert.Equal(t, 1, metrics.Count("identify_events:recorded"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordIdentifyWithoutEventID(t *testing.T) {
	a, mock, _ := newMockAnalytics(t)

	event := logic.CreateCampaignEvent(models.Campaign{}, models.AttributionOptions{})
	event.DeviceID = "device-2"

	mock.ExpectExec("INSERT INTO identify_events").
		WithArgs(sqlmock.AnyArg(), "device-2", int64(0), nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.RecordIdentify(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordIdentifyFailure(t *testing.T) {
	a, mock, metrics := newMockAnalytics(t)
	mock.ExpectExec("INSERT INTO identify_events").WillReturnError(errors.New("connection reset"))

	err := a.RecordIdentify(context.Background(), models.IdentifyEvent{DeviceID: "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, metrics.Count("identify_events:failed"))
}

func TestAnalyticsUnavailable(t *testing.T) {
	var a *Analytics
	ctx := context.Background()

	assert.ErrorIs(t, a.RecordIdentify(ctx, models.IdentifyEvent{}), ErrUnavailable)
	_, err := a.IdentifyEventsByDevice(ctx, "d")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, a.Ping(ctx), ErrUnavailable)
	a.Close()

	empty := &Analytics{}
	assert.ErrorIs(t, empty.RecordIdentify(ctx, models.IdentifyEvent{}), ErrUnavailable)
}

func TestIdentifyEventsByDevice(t *testing.T) {
	a, mock, _ := newMockAnalytics(t)
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	rows := mock.NewRows([]string{"timestamp", "device_id", "session_id", "event_id", "set", "set_once", "unset"}).
		AddRow(ts, "device-1", int64(11), int64(5), map[string]string{"utm_source": "google"}, map[string]string{"initial_utm_source": "google"}, []string{"gclid"}).
		AddRow(ts.Add(time.Hour), "device-1", int64(12), nil, map[string]string{}, map[string]string{}, []string{})
	mock.ExpectQuery("SELECT timestamp, device_id").WithArgs("device-1").WillReturnRows(rows)

	records, err := a.IdentifyEventsByDevice(context.Background(), "device-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ts, records[0].Timestamp)
	require.NotNil(t, records[0].EventID)
	assert.Equal(t, int64(5), *records[0].EventID)
	assert.Equal(t, "google", records[0].Set["utm_source"])
	assert.Equal(t, []string{"gclid"}, records[0].Unset)
	assert.Nil(t, records[1].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifyEventsByDeviceQueryError(t *testing.T) {
	a, mock, _ := newMockAnalytics(t)
	mock.ExpectQuery("SELECT timestamp, device_id").WillReturnError(sql.ErrConnDone)

	_, err := a.IdentifyEventsByDevice(context.Background(), "device-1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestMockAnalytics(t *testing.T) {
	m := NewMockAnalytics()
	require.NoError(t, m.RecordIdentify(context.Background(), models.IdentifyEvent{DeviceID: "a"}))
	assert.Len(t, m.Recorded(), 1)

	m.Err = ErrUnavailable
	assert.ErrorIs(t, m.RecordIdentify(context.Background(), models.IdentifyEvent{}), ErrUnavailable)
	assert.Len(t, m.Recorded(), 1)
}

func TestNewAnalyticsClosesOnFailure(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))
		mock.ExpectClose()

		_, err = newAnalytics(context.Background(), db, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clickhouse ping")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create table", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS identify_events").WillReturnError(errors.New("readonly"))
		mock.ExpectClose()

		_, err = newAnalytics(context.Background(), db, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clickhouse create table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewAnalytics(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS identify_events").WillReturnResult(sqlmock.NewResult(0, 0))

	metrics := observability.NewMockMetricsRegistry()
	a, err := newAnalytics(context.Background(), db, metrics)
	require.NoError(t, err)
	assert.Same(t, db, a.DB)
	assert.NoError(t, mock.ExpectationsWereMet())
}
