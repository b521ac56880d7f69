package pgexec_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/pgq/pgexec"
	"github.com/shipq/pgq/query"
	"github.com/shipq/pgq/query/compile"
)

// fakePool records every statement and answers from respond.
type fakePool struct {
	log      []string
	acquired int
	released int
	respond  func(sql string) ([][]any, error)
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	rows, err := p.run(sql)
	return int64(len(rows)), err
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgexec.Rows, error) {
	rows, err := p.run(sql)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows, pos: -1}, nil
}

func (p *fakePool) Acquire(ctx context.Context) (pgexec.Pinned, error) {
	p.acquired++
	return fakeConn{p}, nil
}

func (p *fakePool) run(sql string) ([][]any, error) {
	p.log = append(p.log, sql)
	if p.respond == nil {
		return nil, nil
	}
	return p.respond(sql)
}

type fakeConn struct {
	*fakePool
}

func (c fakeConn) Release() {
	c.released++
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Columns() []string { return []string{"id"} }
func (r *fakeRows) Next() bool        { r.pos++; return r.pos < len(r.rows) }
func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos], nil
}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

func TestTransaction_Commit(t *testing.T) {
	pool := &fakePool{}
	db := pgexec.New(pool)

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		assert.Equal(t, 1, tx.Depth())
		_, err := tx.Exec(ctx, query.From("users").All().Delete().Query())
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"BEGIN", `DELETE FROM "users"`, "COMMIT"}, pool.log)
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
}

func TestTransaction_NestedRollbackKeepsOuter(t *testing.T) {
	pool := &fakePool{}
	db := pgexec.New(pool)
	boom := errors.New("boom")

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		inner := tx.Transaction(ctx, func(ctx context.Context, sp *pgexec.DB) error {
			assert.Equal(t, 2, sp.Depth())
			return boom
		})
		assert.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"BEGIN",
		`SAVEPOINT "sp1"`,
		`ROLLBACK TO SAVEPOINT "sp1"`,
		"COMMIT",
	}, pool.log)
}

func TestTransaction_NestedRelease(t *testing.T) {
	pool := &fakePool{}
	db := pgexec.New(pool)

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		return tx.Transaction(ctx, func(ctx context.Context, sp *pgexec.DB) error {
			return sp.Transaction(ctx, func(ctx context.Context, sp2 *pgexec.DB) error {
				return nil
			})
		})
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"BEGIN",
		`SAVEPOINT "sp1"`,
		`SAVEPOINT "sp2"`,
		`RELEASE SAVEPOINT "sp2"`,
		`RELEASE SAVEPOINT "sp1"`,
		"COMMIT",
	}, pool.log)
}

func TestTransaction_RollbackOnError(t *testing.T) {
	pool := &fakePool{}
	db := pgexec.New(pool)
	boom := errors.New("boom")

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, pool.log)
	assert.Equal(t, 1, pool.released)
}

func TestTransaction_RollbackFailureIsJoined(t *testing.T) {
	rbErr := errors.New("connection lost")
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		if sql == "ROLLBACK" {
			return nil, rbErr
		}
		return nil, nil
	}}
	boom := errors.New("boom")

	err := pgexec.New(pool).Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, rbErr)
}

func TestTransaction_RollbackOnPanic(t *testing.T) {
	pool := &fakePool{}
	db := pgexec.New(pool)

	assert.Panics(t, func() {
		_ = db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
			panic("boom")
		})
	})
	assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, pool.log)
	assert.Equal(t, 1, pool.released)
}

func TestRun_BatchError(t *testing.T) {
	failure := errors.New("disk full")
	calls := 0
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		calls++
		if calls == 2 {
			return nil, failure
		}
		return nil, nil
	}}
	db := pgexec.New(pool, pgexec.WithCompileOptions(compile.WithBindLimit(2)))

	q := query.From("tags").InsertValues([]string{"name"}, []any{"a"}, []any{"b"}, []any{"c"})
	_, err := db.Query(context.Background(), q.Query())
	require.Error(t, err)

	var be *pgexec.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.ErrorIs(t, err, failure)
	assert.Len(t, pool.log, 2)
}

func TestExec_SumsBatches(t *testing.T) {
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		// one fake row per placeholder
		return make([][]any, strings.Count(sql, "$")), nil
	}}
	db := pgexec.New(pool, pgexec.WithCompileOptions(compile.WithBindLimit(2)))

	q := query.From("tags").InsertValues([]string{"name"}, []any{"a"}, []any{"b"}, []any{"c"})
	n, err := db.Exec(context.Background(), q.Query())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Len(t, pool.log, 2)
}

func upsertQuery() *query.Query {
	return query.From("users").
		Where(query.Cols{"email": "a@b"}).
		Upsert(query.Row{"name": "x"}, query.Row{"email": "a@b", "name": "x"}).
		Query()
}

func TestUpsert_NoConflict(t *testing.T) {
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		if strings.HasPrefix(sql, "WITH") {
			return [][]any{{int64(7)}}, nil
		}
		return nil, nil
	}}

	res, err := pgexec.New(pool).Query(context.Background(), upsertQuery())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(7)}}, res.Rows)
	assert.Equal(t, []string{"id"}, res.Columns)

	require.Len(t, pool.log, 5)
	assert.Equal(t, "BEGIN", pool.log[0])
	assert.Equal(t, `SAVEPOINT "sp1"`, pool.log[1])
	assert.True(t, strings.HasPrefix(pool.log[2], "WITH"))
	assert.Equal(t, `RELEASE SAVEPOINT "sp1"`, pool.log[3])
	assert.Equal(t, "COMMIT", pool.log[4])
}

func TestUpsert_FallbackAfterUniqueViolation(t *testing.T) {
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		switch {
		case strings.HasPrefix(sql, "WITH"):
			return nil, &pgconn.PgError{Code: "23505", Message: "duplicate key"}
		case strings.HasPrefix(sql, "UPDATE"):
			return [][]any{{int64(7)}}, nil
		}
		return nil, nil
	}}

	res, err := pgexec.New(pool).Query(context.Background(), upsertQuery())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(7)}}, res.Rows)

	require.Len(t, pool.log, 6)
	assert.Equal(t, `ROLLBACK TO SAVEPOINT "sp1"`, pool.log[3])
	assert.Equal(t, `UPDATE "users" SET "name" = $1 WHERE "users"."email" = $2 RETURNING *`, pool.log[4])
	assert.Equal(t, "COMMIT", pool.log[5])
}

func TestUpsert_Race(t *testing.T) {
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		if strings.HasPrefix(sql, "WITH") {
			return nil, &pq.Error{Code: "23505"}
		}
		return nil, nil
	}}

	_, err := pgexec.New(pool).Query(context.Background(), upsertQuery())
	require.ErrorIs(t, err, pgexec.ErrUpsertRace)
	assert.Equal(t, "ROLLBACK", pool.log[len(pool.log)-1])
}

func TestUpsert_OtherErrorIsNotRetried(t *testing.T) {
	failure := errors.New("syntax error")
	pool := &fakePool{respond: func(sql string) ([][]any, error) {
		if strings.HasPrefix(sql, "WITH") {
			return nil, failure
		}
		return nil, nil
	}}

	_, err := pgexec.New(pool).Query(context.Background(), upsertQuery())
	require.ErrorIs(t, err, failure)
	for _, sql := range pool.log {
		assert.False(t, strings.HasPrefix(sql, "UPDATE"), "fallback ran: %s", sql)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx", &pgconn.PgError{Code: "23505"}, true},
		{"pq", &pq.Error{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"other code", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("23505"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pgexec.IsUniqueViolation(tt.err))
		})
	}
}
