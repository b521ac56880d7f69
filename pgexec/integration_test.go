//go:build integration

package pgexec_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/pgq/pgexec"
	"github.com/shipq/pgq/query"
	"github.com/shipq/pgq/query/compile"
)

func testURL() string {
	if url := os.Getenv("PGQ_TEST_DATABASE_URL"); url != "" {
		return url
	}
	return "host=/tmp user=postgres database=postgres"
}

// connect returns both driver adapters, skipping when PostgreSQL is unavailable.
func connect(t *testing.T) map[string]pgexec.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pgxPool, err := pgexec.ConnectPgx(ctx, testURL())
	if err != nil {
		t.Skipf("PostgreSQL unavailable: %v", err)
	}
	t.Cleanup(pgxPool.Close)

	std, err := pgexec.OpenStdlib(ctx, testURL())
	if err != nil {
		t.Skipf("PostgreSQL unavailable: %v", err)
	}
	t.Cleanup(func() { std.Close() })

	return map[string]pgexec.Pool{
		"pgx": pgexec.NewPgxPool(pgxPool),
		"pq":  pgexec.NewStdlib(std),
	}
}

func resetTable(t *testing.T, pool pgexec.Pool) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS "pgq_accounts"`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `CREATE TABLE "pgq_accounts" (
		"id" bigserial PRIMARY KEY,
		"email" text NOT NULL UNIQUE,
		"name" text NOT NULL DEFAULT ''
	)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS "pgq_accounts"`)
	})
}

func TestIntegration_UpsertAndBatches(t *testing.T) {
	for name, pool := range connect(t) {
		t.Run(name, func(t *testing.T) {
			resetTable(t, pool)
			ctx := context.Background()
			db := pgexec.New(pool, pgexec.WithCompileOptions(compile.WithBindLimit(4)))
			accounts := query.From("pgq_accounts")

			n, err := db.Exec(ctx, accounts.InsertValues([]string{"email", "name"},
				[]any{"a@x", "a"}, []any{"b@x", "b"}, []any{"c@x", "c"}).Query())
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			up := accounts.Where(query.Cols{"email": "d@x"}).
				Upsert(query.Row{"name": "d2"}, query.Row{"email": "d@x", "name": "d"}).
				Returning("name")
			res, err := db.Query(ctx, up.Query())
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)

			// second run takes the update branch
			res, err = db.Query(ctx, up.Query())
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)

			rows, err := db.Query(ctx, accounts.Select("name").Where(query.Cols{"email": "d@x"}).Query())
			require.NoError(t, err)
			require.Len(t, rows.Rows, 1)
			assert.Equal(t, "d2", rows.Rows[0][0])
		})
	}
}

func TestIntegration_SavepointRollback(t *testing.T) {
	for name, pool := range connect(t) {
		t.Run(name, func(t *testing.T) {
			resetTable(t, pool)
			ctx := context.Background()
			db := pgexec.New(pool)
			accounts := query.From("pgq_accounts")

			err := db.Transaction(ctx, func(ctx context.Context, tx *pgexec.DB) error {
				if _, err := tx.Exec(ctx, accounts.Insert(query.Row{"email": "keep@x"}).Query()); err != nil {
					return err
				}
				inner := tx.Transaction(ctx, func(ctx context.Context, sp *pgexec.DB) error {
					_, err := sp.Exec(ctx, accounts.Insert(query.Row{"email": "keep@x"}).Query())
					return err
				})
				assert.True(t, pgexec.IsUniqueViolation(inner))
				return nil
			})
			require.NoError(t, err)

			res, err := db.Query(ctx, accounts.Select("email").Query())
			require.NoError(t, err)
			assert.Len(t, res.Rows, 1)
		})
	}
}
