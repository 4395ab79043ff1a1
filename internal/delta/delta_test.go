package delta

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictradar/signalscan/internal/model"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, -0.13, round2(-0.125))
	assert.Equal(t, 0.1, round2(0.1))
}

func TestComputeScalesDeltaToPercentagePoints(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	e := New(sqlxDB)

	tsMinute := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT provider, market_id, outcome_id, probability FROM snapshots").
		WithArgs(tsMinute).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "market_id", "outcome_id", "probability"}).
			AddRow("kalshi", "m1", "yes", 0.62))

	mock.ExpectQuery("SELECT probability FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"probability"}).AddRow(0.50))
	for i := 0; i < 7; i++ {
		mock.ExpectQuery("SELECT probability FROM snapshots").
			WillReturnError(sql.ErrNoRows)
	}

	deltas, err := e.Compute(context.Background(), tsMinute)
	require.NoError(t, err)
	require.Len(t, deltas, 1)

	dv := deltas[0].Values[model.Window1m]
	require.NotNil(t, dv)
	assert.Equal(t, 12.0, *dv)
}

func TestComputeNoPriorSnapshotYieldsNilDelta(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	e := New(sqlxDB)

	tsMinute := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT provider, market_id, outcome_id, probability FROM snapshots").
		WithArgs(tsMinute).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "market_id", "outcome_id", "probability"}).
			AddRow("kalshi", "m1", "yes", 0.62))

	for i := 0; i < 8; i++ {
		mock.ExpectQuery("SELECT probability FROM snapshots").
			WillReturnError(sql.ErrNoRows)
	}

	deltas, err := e.Compute(context.Background(), tsMinute)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	for _, w := range deltas[0].Values {
		assert.Nil(t, w)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestSnapshotFallsBackToOlderSnapshotBeyondWindow(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	e := New(sqlxDB)

	target := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	// No snapshot within the usual few minutes, but one does exist much
	// earlier (a missed-tick gap); it must still be used as the baseline.
	mock.ExpectQuery("SELECT probability FROM snapshots").
		WithArgs(model.Provider("kalshi"), "m1", "yes", target).
		WillReturnRows(sqlmock.NewRows([]string{"probability"}).AddRow(0.40))

	prob, ok, err := e.nearestSnapshot(context.Background(), "kalshi", "m1", "yes", target)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.40, prob)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestSnapshotNeverSelectsAfterTarget(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	e := New(sqlxDB)

	target := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ts_minute <= \$4\s+ORDER BY ts_minute DESC`).
		WithArgs(model.Provider("kalshi"), "m1", "yes", target).
		WillReturnRows(sqlmock.NewRows([]string{"probability"}).AddRow(0.40))

	_, _, err = e.nearestSnapshot(context.Background(), "kalshi", "m1", "yes", target)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
