package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/providers"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestUpsertCycleWritesMarketOutcomeAndSnapshotPerProvider(t *testing.T) {
	db, mock := newMock(t)
	s := New(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO markets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outcomes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO snapshots").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ts := time.Now().UTC().Truncate(time.Minute)
	batch := map[model.Provider][]providers.Snapshot{
		model.ProviderKalshi: {
			{
				TsMinute: ts, MarketID: "m1", OutcomeID: "m1:yes", OutcomeLabel: "Yes",
				MarketTitle: "Will X happen?", Probability: 0.6,
			},
		},
	}

	written, err := s.UpsertCycle(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCycleSkipsEmptyProviderBatch(t *testing.T) {
	db, mock := newMock(t)
	s := New(db, time.Second)

	written, err := s.UpsertCycle(context.Background(), map[model.Provider][]providers.Snapshot{
		model.ProviderKalshi: {},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCycleRollsBackOnSnapshotError(t *testing.T) {
	db, mock := newMock(t)
	s := New(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO markets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outcomes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO snapshots").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	batch := map[model.Provider][]providers.Snapshot{
		model.ProviderKalshi: {
			{MarketID: "m1", OutcomeID: "m1:yes", OutcomeLabel: "Yes", Probability: 0.6},
		},
	}

	_, err := s.UpsertCycle(context.Background(), batch)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnprofiledMarketsReturnsKeys(t *testing.T) {
	db, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"provider", "market_id"}).
		AddRow("kalshi", "m1").
		AddRow("polymarket", "m2")
	mock.ExpectQuery("SELECT m.provider, m.market_id").
		WithArgs("v1", 500).
		WillReturnRows(rows)

	keys, err := UnprofiledMarkets(context.Background(), db, "v1", 500)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, model.MarketKey{Provider: "kalshi", MarketID: "m1"}, keys[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMarketTextFetchesEachKey(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT title, raw_category, normalized_category, metadata").
		WithArgs("kalshi", "m1").
		WillReturnRows(sqlmock.NewRows([]string{"title", "raw_category", "normalized_category", "metadata"}).
			AddRow("Will X happen?", "Crypto", "crypto", []byte(`{"event_ticker":"E1"}`)))

	out, err := LoadMarketText(context.Background(), db, []model.MarketKey{{Provider: "kalshi", MarketID: "m1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Will X happen?", out[0].Title)
	assert.Equal(t, model.Category("crypto"), out[0].Category)
	assert.Equal(t, "E1", out[0].Metadata["event_ticker"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotTickReturnsZeroWhenEmpty(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT MAX\\(ts_minute\\) FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	ts, err := LatestSnapshotTick(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotTickReturnsMaxTick(t *testing.T) {
	db, mock := newMock(t)

	want := time.Date(2026, 7, 29, 12, 5, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT MAX\\(ts_minute\\) FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(want))

	ts, err := LatestSnapshotTick(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, want.Equal(ts))
	require.NoError(t, mock.ExpectationsWereMet())
}
