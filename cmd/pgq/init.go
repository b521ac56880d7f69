package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/internal/config"
)

func newInitCommand(root *rootOptions) *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a pgq.ini with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.Dir
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			path, err := config.WriteDefault(dir, dbURL)
			if err != nil {
				return err
			}
			cli.Successf("wrote %s", path)
			if dbURL == "" {
				cli.Info("set [db] url or PGQ_DB_URL before running exec")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "PostgreSQL connection URL to store in [db] url")

	return cmd
}
