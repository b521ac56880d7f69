// Package pgexec runs compiled statements against PostgreSQL.
//
// It owns the parts of execution the compiler leaves to its caller:
// nested transactions (BEGIN at the outermost scope, savepoints below it),
// running batched inserts in order, and the fallback update of an emulated
// upsert that lost a race with a concurrent insert.
package pgexec

import "context"

// Conn runs SQL. Both pools and pinned connections implement it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows is a result set read row by row.
type Rows interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Pool hands out connections. Transactions pin one for their duration.
type Pool interface {
	Conn
	Acquire(ctx context.Context) (Pinned, error)
}

// Pinned is a connection taken out of a pool.
type Pinned interface {
	Conn
	Release()
}

// readAll drains rows.
func readAll(rows Rows) ([]string, [][]any, error) {
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return rows.Columns(), out, nil
}
