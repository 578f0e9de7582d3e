package db

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db:3306", Name: "memberd", User: "memberd", Password: "secret"}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "memberd:secret@tcp(db:3306)/memberd")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestCursorPingsBeforeUse(t *testing.T) {
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	h := NewFromPool(pool, testLogger())

	mock.ExpectPing()
	mock.ExpectExec("UPDATE quiz_questions SET deleted_at=CURRENT_TIMESTAMP WHERE id=?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	cur, err := h.Cursor(context.Background())
	require.NoError(t, err)
	_, err = cur.Exec(context.Background(), "UPDATE quiz_questions SET deleted_at=CURRENT_TIMESTAMP WHERE id=?", int64(1))
	require.NoError(t, err)
	require.NoError(t, cur.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, h.Close())
}

func TestCursorReconnectsOnPingFailure(t *testing.T) {
	// First pool: ping fails, forcing a reconnect.
	badPool, badMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	badMock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	badMock.ExpectClose()

	// Second pool: healthy.
	goodPool, goodMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	goodMock.ExpectPing()
	goodMock.ExpectClose()

	h := &Handle{log: testLogger(), pool: badPool}
	h.open = func() (*sql.DB, error) { return goodPool, nil }

	cur, err := h.Cursor(context.Background())
	require.NoError(t, err)
	require.NoError(t, cur.Close())

	assert.NoError(t, badMock.ExpectationsWereMet())
	require.NoError(t, h.Close())
	assert.NoError(t, goodMock.ExpectationsWereMet())
}

func TestCursorPropagatesReconnectFailure(t *testing.T) {
	badPool, badMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	badMock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	badMock.ExpectClose()

	stillBadPool, stillBadMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	stillBadMock.ExpectPing().WillReturnError(errors.New("connection refused"))

	h := &Handle{log: testLogger(), pool: badPool}
	h.open = func() (*sql.DB, error) { return stillBadPool, nil }

	_, err = h.Cursor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database reconnect failed")
}

func TestConnectPingsExistingPool(t *testing.T) {
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	h := NewFromPool(pool, testLogger())
	mock.ExpectPing()
	require.NoError(t, h.Connect(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIsIdempotent(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	h := NewFromPool(pool, testLogger())
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
