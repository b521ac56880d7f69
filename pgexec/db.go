package pgexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/lib/pq"

	"github.com/shipq/pgq/query"
	"github.com/shipq/pgq/query/compile"
)

// Result holds the rows returned by the executed statements, in order.
type Result struct {
	Columns []string
	Rows    [][]any
}

// DB compiles and runs queries. Inside a transaction it is bound to the
// transaction's connection and nesting depth.
type DB struct {
	pool  Pool
	conn  Conn
	depth int

	logger      *slog.Logger
	compileOpts []compile.Option
}

// Option configures a DB.
type Option func(*DB)

// WithLogger logs transaction scopes and upsert retries.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithCompileOptions passes options to every compile.
func WithCompileOptions(opts ...compile.Option) Option {
	return func(db *DB) {
		db.compileOpts = append(db.compileOpts, opts...)
	}
}

// New returns a DB running statements on pool.
func New(pool Pool, opts ...Option) *DB {
	db := &DB{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Depth is the transaction nesting depth, 0 outside a transaction.
func (db *DB) Depth() int {
	return db.depth
}

func (db *DB) runner() Conn {
	if db.conn != nil {
		return db.conn
	}
	return db.pool
}

// Compile compiles q with the DB's compile options.
func (db *DB) Compile(q *query.Query) (*compile.Result, error) {
	return compile.Compile(q, db.compileOpts...)
}

// Query compiles q and returns the rows of every statement it produced.
func (db *DB) Query(ctx context.Context, q *query.Query) (*Result, error) {
	res, err := db.Compile(q)
	if err != nil {
		return nil, err
	}
	return db.Run(ctx, res)
}

// Run executes a compiled result. Batches run in order outside any
// implicit transaction; the first failure stops the rest and is returned
// as a *BatchError alongside the rows of the statements that succeeded.
func (db *DB) Run(ctx context.Context, res *compile.Result) (*Result, error) {
	if res.UpsertFallback != nil {
		return db.upsert(ctx, res)
	}
	out := &Result{}
	for i, st := range res.Statements() {
		cols, rows, err := db.query(ctx, st)
		if err != nil {
			if len(res.Batch) > 0 {
				return out, &BatchError{Index: i, Err: err}
			}
			return nil, err
		}
		if out.Columns == nil {
			out.Columns = cols
		}
		out.Rows = append(out.Rows, rows...)
	}
	return out, nil
}

// Exec compiles q, runs every statement and returns the rows affected.
func (db *DB) Exec(ctx context.Context, q *query.Query) (int64, error) {
	res, err := db.Compile(q)
	if err != nil {
		return 0, err
	}
	if res.UpsertFallback != nil {
		r, err := db.upsert(ctx, res)
		if err != nil {
			return 0, err
		}
		return int64(len(r.Rows)), nil
	}

	var total int64
	for i, st := range res.Statements() {
		n, err := db.runner().Exec(ctx, st.Text, st.Values...)
		if err != nil {
			if len(res.Batch) > 0 {
				return total, &BatchError{Index: i, Err: err}
			}
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (db *DB) query(ctx context.Context, st compile.Statement) ([]string, [][]any, error) {
	rows, err := db.runner().Query(ctx, st.Text, st.Values...)
	if err != nil {
		return nil, nil, err
	}
	return readAll(rows)
}

// upsert runs the emulated upsert in a transaction. The statement runs
// under a savepoint; when its insert loses a race to a concurrent insert
// of the same key, the savepoint is rolled back and the update branch is
// run once more.
func (db *DB) upsert(ctx context.Context, res *compile.Result) (*Result, error) {
	var out *Result
	err := db.Transaction(ctx, func(ctx context.Context, tx *DB) error {
		err := tx.Transaction(ctx, func(ctx context.Context, sp *DB) error {
			cols, rows, err := sp.query(ctx, res.Statement)
			if err != nil {
				return err
			}
			out = &Result{Columns: cols, Rows: rows}
			return nil
		})
		if err == nil || !IsUniqueViolation(err) {
			return err
		}

		tx.logger.Warn("upsert_retry", "sql", res.UpsertFallback.Text, "error", err)
		cols, rows, err := tx.query(ctx, *res.UpsertFallback)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrUpsertRace
		}
		out = &Result{Columns: cols, Rows: rows}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transaction runs fn in a transaction scope. The outermost scope pins a
// connection and issues BEGIN, COMMIT or ROLLBACK; nested scopes use
// savepoints named by depth, so a failing inner scope is undone without
// aborting the outer one. fn's error is returned after rolling back.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	if db.depth > 0 {
		return db.savepoint(ctx, fn)
	}

	pinned, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer pinned.Release()

	if _, err := pinned.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	db.logger.Debug("transaction_started")

	tx := db.scope(pinned, 1)
	return finish(ctx, pinned, db.logger, "COMMIT", "ROLLBACK", func() error {
		return fn(ctx, tx)
	})
}

func (db *DB) savepoint(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	name := pq.QuoteIdentifier("sp" + strconv.Itoa(db.depth))
	if _, err := db.conn.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	db.logger.Debug("savepoint_started", "depth", db.depth)

	tx := db.scope(db.conn, db.depth+1)
	return finish(ctx, db.conn, db.logger, "RELEASE SAVEPOINT "+name, "ROLLBACK TO SAVEPOINT "+name, func() error {
		return fn(ctx, tx)
	})
}

func (db *DB) scope(conn Conn, depth int) *DB {
	return &DB{
		pool:        db.pool,
		conn:        conn,
		depth:       depth,
		logger:      db.logger,
		compileOpts: db.compileOpts,
	}
}

// finish runs fn and then commit, or rollback when fn fails or panics.
func finish(ctx context.Context, conn Conn, logger *slog.Logger, commit, rollback string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.Exec(context.WithoutCancel(ctx), rollback)
			panic(p)
		}
	}()

	if err := fn(); err != nil {
		logger.Debug("transaction_rollback", "statement", rollback, "error", err)
		if _, rbErr := conn.Exec(context.WithoutCancel(ctx), rollback); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if _, err := conn.Exec(ctx, commit); err != nil {
		return fmt.Errorf("%s: %w", commit, err)
	}
	return nil
}
