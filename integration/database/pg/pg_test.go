package pg_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventstream/integration/database/pg"
)

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, pg.IsDuplicateKeyError(dup))
	assert.False(t, pg.IsDuplicateKeyError(fk))
	assert.True(t, pg.IsForeignKeyViolationError(fk))
	assert.True(t, pg.IsNotFoundError(fmt.Errorf("find: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(errors.New("other")))
	assert.True(t, pg.IsTxClosedError(pgx.ErrTxClosed))
}

func TestConnect_InvalidConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := pg.Connect(ctx, pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)

	_, err = pg.Connect(ctx, pg.Config{ConnectionString: "postgres://%zz"})
	assert.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
}

func TestMigrate_PathErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	err := pg.Migrate(ctx, nil, pg.Config{}, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationPathNotProvided)

	err = pg.Migrate(ctx, nil, pg.Config{MigrationsPath: t.TempDir() + "/missing"}, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationsDirNotFound)
}

func TestTxContext(t *testing.T) {
	t.Parallel()

	_, ok := pg.TxFromContext(context.Background())
	assert.False(t, ok)

	ctx := pg.WithTx(context.Background(), nil)
	_, ok = pg.TxFromContext(ctx)
	assert.False(t, ok, "nil tx must not be stored")
}

func TestWithDatabase(t *testing.T) {
	url := os.Getenv("TEST_PG_URL")
	if url == "" {
		t.Skip("TEST_PG_URL not set")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := pg.Config{
		ConnectionString: url,
		RetryAttempts:    2,
		RetryInterval:    100 * time.Millisecond,
		MigrationsTable:  "pg_test_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Healthcheck(pool)(ctx))

	migrations := fstest.MapFS{
		"00001_pg_test.sql": {Data: []byte(`-- +goose Up
CREATE TABLE IF NOT EXISTS pg_test_items (id INT PRIMARY KEY);
-- +goose Down
DROP TABLE IF EXISTS pg_test_items;
`)},
	}
	require.NoError(t, pg.MigrateFS(ctx, pool, migrations, cfg, nil))
	require.NoError(t, pg.MigrateFS(ctx, pool, migrations, cfg, nil), "migrations must be idempotent")

	_, err = pool.Exec(ctx, "DELETE FROM pg_test_items")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = pg.InTx(ctx, pool, func(ctx context.Context) error {
		_, ok := pg.TxFromContext(ctx)
		require.True(t, ok)
		if _, err := pg.Conn(ctx, pool).Exec(ctx, "INSERT INTO pg_test_items (id) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM pg_test_items").Scan(&n))
	assert.Zero(t, n, "rolled back insert must not be visible")

	err = pg.InTx(ctx, pool, func(ctx context.Context) error {
		_, err := pg.Conn(ctx, pool).Exec(ctx, "INSERT INTO pg_test_items (id) VALUES (2)")
		return err
	})
	require.NoError(t, err)

	err = pg.InTx(ctx, pool, func(ctx context.Context) error {
		_, err := pg.Conn(ctx, pool).Exec(ctx, "INSERT INTO pg_test_items (id) VALUES (2)")
		return err
	})
	assert.True(t, pg.IsDuplicateKeyError(err))
}
