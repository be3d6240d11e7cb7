package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPingWithRetry_RecoversAfterTransientFailures(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	err = PingWithRetry(context.Background(), db, 3, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = PingWithRetry(context.Background(), db, 2, time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry_StopsOnContextCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = PingWithRetry(ctx, db, 5, time.Second, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
