package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "results.db"),
		Name: "results",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	// Second migration must be a no-op, not an error.
	require.NoError(t, db.Migrate())

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM optimization_results").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.QuickCheck(context.Background()))
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO optimization_results
			(id, created_at, run_id, as_of_date, ticker, predicted_price, predicted_return, portfolio_weight)
			VALUES ('a', 1, 'r1', '2024-01-02', 'AAPL', 190.0, 0.05, 1.0)`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM optimization_results").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)

	wantErr := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(`INSERT INTO optimization_results
			(id, created_at, run_id, as_of_date, ticker, predicted_price, predicted_return, portfolio_weight)
			VALUES ('b', 1, 'r1', '2024-01-02', 'MSFT', 400.0, 0.03, 1.0)`)
		require.NoError(t, execErr)
		return wantErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM optimization_results").Scan(&count))
	assert.Equal(t, 0, count, "insert must be rolled back")
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestWithTransaction_NilConnection(t *testing.T) {
	err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
	assert.Error(t, err)
}
