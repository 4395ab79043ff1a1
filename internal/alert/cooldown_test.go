package alert

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldSendNoPriorStateIsEligible(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	c := NewCooldown(sqlxDB, nil)

	mock.ExpectQuery("SELECT last_sent_at FROM alert_state").
		WithArgs("kalshi:m1:yes:1m:UP").
		WillReturnError(sql.ErrNoRows)

	ok, err := c.ShouldSend(context.Background(), "kalshi:m1:yes:1m:UP", 30*time.Minute, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShouldSendWithinCooldownIsNotEligible(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	c := NewCooldown(sqlxDB, nil)

	now := time.Now().UTC()
	lastSent := now.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT last_sent_at FROM alert_state").
		WithArgs("kalshi:m1:yes:1m:UP").
		WillReturnRows(sqlmock.NewRows([]string{"last_sent_at"}).AddRow(lastSent))

	ok, err := c.ShouldSend(context.Background(), "kalshi:m1:yes:1m:UP", 30*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShouldSendAfterCooldownIsEligible(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	c := NewCooldown(sqlxDB, nil)

	now := time.Now().UTC()
	lastSent := now.Add(-45 * time.Minute)

	mock.ExpectQuery("SELECT last_sent_at FROM alert_state").
		WithArgs("kalshi:m1:yes:1m:UP").
		WillReturnRows(sqlmock.NewRows([]string{"last_sent_at"}).AddRow(lastSent))

	ok, err := c.ShouldSend(context.Background(), "kalshi:m1:yes:1m:UP", 30*time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
