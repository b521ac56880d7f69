package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	noColor := color.NoColor
	color.NoColor = true
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := Stdout, Stderr
	Stdout, Stderr = out, errOut
	t.Cleanup(func() {
		color.NoColor = noColor
		Stdout, Stderr = prevOut, prevErr
	})
	return out, errOut
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Successf("compiled %d queries", 3)
	Infof("watching %s", "queries.yaml")
	Warnf("query %q has no table", "x")
	Error(errors.New("boom"))

	assert.Equal(t, "✓ compiled 3 queries\nwatching queries.yaml\n", out.String())
	assert.Equal(t, "warning: query \"x\" has no table\nerror: boom\n", errOut.String())
}

func TestStatement(t *testing.T) {
	out, _ := capture(t)

	Statement("list_users", `SELECT "users"."id" FROM "users" WHERE "users"."age" > $1`, []any{18})

	assert.Equal(t, "-- list_users\n"+
		`SELECT "users"."id" FROM "users" WHERE "users"."age" > $1`+"\n"+
		"--   $1 = 18\n", out.String())
}

func TestTable(t *testing.T) {
	out, _ := capture(t)

	Table([]string{"id", "name"}, [][]any{{int64(1), "ann"}, {int64(2), nil}})

	assert.Equal(t, "id\tname\n1\tann\n2\tNULL\n(2 rows)\n", out.String())
}
