package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shipq/pgq/cli"
	"github.com/shipq/pgq/irfile"
	"github.com/shipq/pgq/query/compile"
)

type compileOptions struct {
	*rootOptions
	Params []string
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile [query...]",
		Short: "Print the SQL and bind values of named queries",
		Long: `Compile named queries from the IR document and print each statement
with its bind values. Without arguments every query in the document is
compiled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := opts.document()
			if err != nil {
				return err
			}
			params, err := parseParams(opts.Params)
			if err != nil {
				return err
			}
			return compileAll(doc, args, params, opts.cfg.Compile.Options())
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "query parameter name=value (repeatable)")

	return cmd
}

// compileAll prints the named queries, or every query when names is empty.
// A query that fails is reported and the rest still compile.
func compileAll(doc *irfile.Document, names []string, params map[string]any, opts []compile.Option) error {
	if len(names) == 0 {
		names = doc.Names()
	}
	failed := 0
	for _, name := range names {
		if err := compileOne(doc, name, params, opts); err != nil {
			cli.Warnf("%s: %v", name, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed to compile", failed, len(names))
	}
	return nil
}

func compileOne(doc *irfile.Document, name string, params map[string]any, opts []compile.Option) error {
	q, err := doc.Query(name, params)
	if err != nil {
		return err
	}
	res, err := compile.Compile(q, opts...)
	if err != nil {
		return err
	}

	stmts := res.Statements()
	for i, st := range stmts {
		title := name
		if len(stmts) > 1 {
			title = fmt.Sprintf("%s (batch %d/%d)", name, i+1, len(stmts))
		}
		cli.Statement(title, st.Text, st.Values)
	}
	if res.UpsertFallback != nil {
		cli.Statement(name+" (on unique violation)", res.UpsertFallback.Text, res.UpsertFallback.Values)
	}
	return nil
}
