package main

import (
	"github.com/spf13/cobra"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/logging"
	"github.com/shipq/pgq/query"
)

func newColumnsCommand(root *rootOptions) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "columns <table> [column]",
		Short: "Describe the columns of a table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			column := ""
			if len(args) == 2 {
				column = args[1]
			}
			q := query.From(args[0]).ColumnInfo(column).Query()

			ctx := logging.WithQueryName(cmd.Context(), "columns")
			db, closeDB, err := root.connect(ctx, driver)
			if err != nil {
				return err
			}
			defer closeDB()

			res, err := db.Query(ctx, q)
			if err != nil {
				return err
			}
			cli.Table(res.Columns, res.Rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "pgx", "database driver (pgx|pq)")

	return cmd
}
