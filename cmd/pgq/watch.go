package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/internal/watch"
	"github.com/shipq/pgq/irfile"
)

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "watch [query...]",
		Short: "Recompile named queries whenever the IR document changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(opts.Params)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			path := opts.cfg.QueriesPath()
			cli.Infof("watching %s", path)
			return watch.File(ctx, path, watch.DefaultDebounce, func() error {
				doc, err := irfile.Load(path)
				if err != nil {
					return err
				}
				return compileAll(doc, args, params, opts.cfg.Compile.Options())
			}, cli.Error)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "query parameter name=value (repeatable)")

	return cmd
}
