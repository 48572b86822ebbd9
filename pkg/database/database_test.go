package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("applies migrations", func(t *testing.T) {
		db, err := New(ctx,
			WithDataSource(":memory:"),
			WithMigrations(
				`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`,
				`INSERT OR IGNORE INTO kv (k, v) VALUES ('a', 'b')`,
			),
		)
		require.NoError(t, err)
		defer db.Close()

		var v string
		require.NoError(t, db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = 'a'`).Scan(&v))
		assert.Equal(t, "b", v)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("pool options on a file", func(t *testing.T) {
		db, err := New(ctx,
			WithDataSource(filepath.Join(t.TempDir(), "state.db")),
			WithMaxOpenConns(2),
			WithConnMaxIdleTime(time.Second),
		)
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, 2, db.Stats().MaxOpenConnections)
	})

	t.Run("memory ignores pool size", func(t *testing.T) {
		db, err := New(ctx, WithDataSource(":memory:"), WithMaxOpenConns(8), WithConnMaxIdleTime(time.Millisecond))
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, db.PingContext(ctx))
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
		assert.Zero(t, db.Stats().MaxIdleTimeClosed)
	})

	t.Run("empty driver", func(t *testing.T) {
		_, err := New(ctx, WithDriver(""))
		assert.Error(t, err)
	})

	t.Run("empty data source", func(t *testing.T) {
		_, err := New(ctx, WithDataSource(""))
		assert.Error(t, err)
	})

	t.Run("failing migration is retried then reported", func(t *testing.T) {
		_, err := New(ctx,
			WithRetry(2, time.Millisecond),
			WithMigrations(`NOT VALID SQL`),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}
