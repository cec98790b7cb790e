package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAttributionReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	day1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, -1)

	mock.ExpectQuery("GROUP BY date").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"date", "new_campaigns", "devices"}).
			AddRow(day1, int64(30), int64(25)).
			AddRow(day2, int64(10), int64(9)))
	mock.ExpectQuery("GROUP BY source, medium, campaign").WithArgs(7, 5).
		WillReturnRows(sqlmock.NewRows([]string{"source", "medium", "campaign", "new_campaigns", "devices"}).
			AddRow("google", "cpc", "spring", int64(20), int64(18)).
			AddRow("", "", "", int64(10), int64(10)))
	mock.ExpectQuery("mapContains").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(int64(10)))

	summary, err := GenerateAttributionReport(context.Background(), db, 7, 5)
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Days)
	assert.Equal(t, int64(40), summary.TotalNewCampaigns)
	assert.InDelta(t, 25.0, summary.UntaggedShare, 0.001)
	require.Len(t, summary.DailyMetrics, 2)
	assert.Equal(t, day1, summary.DailyMetrics[0].Date)
	assert.Equal(t, int64(25), summary.DailyMetrics[0].Devices)
	require.Len(t, summary.TopSources, 2)
	assert.Equal(t, "google", summary.TopSources[0].Source)
	assert.Equal(t, "", summary.TopSources[1].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateAttributionReportEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("GROUP BY date").WillReturnRows(sqlmock.NewRows([]string{"date", "new_campaigns", "devices"}))
	mock.ExpectQuery("GROUP BY source").WillReturnRows(sqlmock.NewRows([]string{"source", "medium", "campaign", "new_campaigns", "devices"}))
	mock.ExpectQuery("mapContains").WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(int64(0)))

	summary, err := GenerateAttributionReport(context.Background(), db, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalNewCampaigns)
	assert.Zero(t, summary.UntaggedShare)
	assert.Empty(t, summary.TopSources)
}

func TestGenerateAttributionReportQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("GROUP BY date").WillReturnError(errors.New("table missing"))

	_, err = GenerateAttributionReport(context.Background(), db, 7, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get daily metrics")
}
