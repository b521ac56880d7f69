package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/logging"
	"github.com/shipq/pgq/pgexec"
	"github.com/shipq/pgq/query"
)

type execOptions struct {
	*rootOptions
	Params []string
	Driver string
	Tx     bool
}

func newExecCommand(root *rootOptions) *cobra.Command {
	opts := &execOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "exec <query>",
		Short: "Run a named query and print the rows it returns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := opts.document()
			if err != nil {
				return err
			}
			params, err := parseParams(opts.Params)
			if err != nil {
				return err
			}
			q, err := doc.Query(args[0], params)
			if err != nil {
				return err
			}

			ctx := logging.WithQueryName(cmd.Context(), args[0])
			db, closeDB, err := opts.connect(ctx, opts.Driver)
			if err != nil {
				return err
			}
			defer closeDB()

			res, err := run(ctx, db, q, opts.Tx)
			if err != nil {
				return err
			}
			cli.Table(res.Columns, res.Rows)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "query parameter name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "pgx", "database driver (pgx|pq)")
	cmd.Flags().BoolVar(&opts.Tx, "tx", false, "run every statement of the query in one transaction")

	return cmd
}

// run executes q, inside a transaction when tx is set so a batched insert
// is applied entirely or not at all.
func run(ctx context.Context, db *pgexec.DB, q *query.Query, tx bool) (*pgexec.Result, error) {
	if !tx {
		return db.Query(ctx, q)
	}
	var res *pgexec.Result
	err := db.Transaction(ctx, func(ctx context.Context, tx *pgexec.DB) error {
		var err error
		res, err = tx.Query(ctx, q)
		return err
	})
	return res, err
}
