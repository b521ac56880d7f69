package pgexec

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenStdlib opens a database/sql handle through lib/pq.
func OpenStdlib(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewStdlib adapts a database/sql handle.
func NewStdlib(db *sql.DB) Pool {
	return stdPool{db: db}
}

// queryer is what *sql.DB and *sql.Conn have in common.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func stdExec(ctx context.Context, q queryer, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Statements such as BEGIN report no row count.
		return 0, nil
	}
	return n, nil
}

func stdQuery(ctx context.Context, q queryer, query string, args []any) (Rows, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &stdRows{rows: rows, cols: cols}, nil
}

type stdPool struct {
	db *sql.DB
}

func (p stdPool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return stdExec(ctx, p.db, query, args)
}

func (p stdPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return stdQuery(ctx, p.db, query, args)
}

func (p stdPool) Acquire(ctx context.Context) (Pinned, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return stdConn{conn: conn}, nil
}

type stdConn struct {
	conn *sql.Conn
}

func (c stdConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return stdExec(ctx, c.conn, query, args)
}

func (c stdConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return stdQuery(ctx, c.conn, query, args)
}

func (c stdConn) Release() {
	c.conn.Close()
}

type stdRows struct {
	rows *sql.Rows
	cols []string
}

func (r *stdRows) Columns() []string { return r.cols }
func (r *stdRows) Next() bool        { return r.rows.Next() }
func (r *stdRows) Err() error        { return r.rows.Err() }
func (r *stdRows) Close()            { r.rows.Close() }

func (r *stdRows) Values() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
