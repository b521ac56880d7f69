package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/internal/config"
	"github.com/shipq/pgq/internal/project"
	"github.com/shipq/pgq/irfile"
	"github.com/shipq/pgq/logging"
	"github.com/shipq/pgq/pgexec"
)

// rootOptions holds global flags and what PersistentPreRunE loads from them.
type rootOptions struct {
	Dir      string
	Queries  string
	LogLevel string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pgq",
		Short:         "Compile query IR to PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.Stdout = cmd.OutOrStdout()
			cli.Stderr = cmd.ErrOrStderr()
			if cmd.Name() == "init" {
				return nil
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "directory holding pgq.ini (default: nearest ancestor with one)")
	cmd.PersistentFlags().StringVarP(&opts.Queries, "queries", "q", "", "IR document (default: [db] queries from pgq.ini)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override [log] level")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newColumnsCommand(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	dir, err := project.Resolve(o.Dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if o.Queries != "" {
		abs, err := filepath.Abs(o.Queries)
		if err != nil {
			return err
		}
		cfg.DB.Queries = abs
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *rootOptions) document() (*irfile.Document, error) {
	return irfile.Load(o.cfg.QueriesPath())
}

// connect opens the configured database through driver ("pgx" or "pq")
// and returns a statement-logging DB with a close function.
func (o *rootOptions) connect(ctx context.Context, driver string) (*pgexec.DB, func(), error) {
	url, err := o.cfg.RequireURL()
	if err != nil {
		return nil, nil, err
	}

	var pool pgexec.Pool
	var closer func()
	switch driver {
	case "pgx":
		p, err := pgexec.ConnectPgx(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		pool, closer = pgexec.NewPgxPool(p), p.Close
	case "pq":
		db, err := pgexec.OpenStdlib(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		pool, closer = pgexec.NewStdlib(db), func() { db.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown driver %q (valid: pgx, pq)", driver)
	}

	db := pgexec.New(logging.Decorate(nil, o.logger, pool),
		pgexec.WithLogger(o.logger),
		pgexec.WithCompileOptions(o.cfg.Compile.Options()...),
	)
	return db, closer, nil
}

// parseParams turns name=value flags into parameters. Values are read as
// YAML scalars, so 18 is an int, true a bool and null nil.
func parseParams(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, p := range raw {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}
