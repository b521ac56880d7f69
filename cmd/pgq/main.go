// Command pgq compiles named queries from an IR document to PostgreSQL
// and runs them.
package main

import (
	"os"

	"github.com/shipq/pgq/cli"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		cli.Error(err)
		os.Exit(1)
	}
}
