package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/pgq/internal/config"
)

const queriesYAML = `
tables:
  users:
    primary_key: [id]

queries:
  - name: rename
    kind: update
    from: users
    set: {name: $name}
    where:
      - id: $id

  - name: purge
    kind: delete
    from: users
    all: true
`

func setup(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"PGQ_DB_URL", "DATABASE_URL", "PGQ_LOG_LEVEL", "PGQ_LOG_FORMAT", "PGQ_COMPILE_BIND_LIMIT", "PGQ_DB_QUERIES"} {
		t.Setenv(k, "")
	}
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries.yaml"), []byte(queriesYAML), 0644))
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"id=3", "name=bob", "active=true", "gone=null", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":     3,
		"name":   "bob",
		"active": true,
		"gone":   nil,
		"note":   "a=b",
	}, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=3"})
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "-C", dir, "compile", "rename", "-p", "name=bob", "-p", "id=3")
	require.NoError(t, err)
	assert.Equal(t, "-- rename\n"+
		`UPDATE "users" SET "name" = $1 WHERE "users"."id" = $2`+"\n"+
		"--   $1 = \"bob\"\n"+
		"--   $2 = 3\n", out)
}

func TestCompileCommandReportsFailures(t *testing.T) {
	dir := setup(t)

	out, errOut, err := execute(t, "-C", dir, "compile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 queries failed")
	assert.Contains(t, errOut, "warning: rename:")
	assert.Contains(t, out, `DELETE FROM "users"`)
}

func TestInitCommand(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "-C", dir, "init", "--db-url", "postgres://localhost/app")
	require.NoError(t, err)
	assert.Contains(t, out, config.ConfigFilename)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.FromFile)
	assert.Equal(t, "postgres://localhost/app", cfg.DB.URL)

	_, _, err = execute(t, "-C", dir, "init")
	assert.Error(t, err)
}

func TestExecRequiresURL(t *testing.T) {
	dir := setup(t)

	_, _, err := execute(t, "-C", dir, "exec", "purge")
	assert.ErrorIs(t, err, config.ErrNoDatabaseURL)
}

func TestQueriesFlag(t *testing.T) {
	dir := setup(t)
	other := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte(`
tables: {}
queries:
  - name: wipe
    kind: truncate
    from: logs
`), 0644))

	out, _, err := execute(t, "-C", dir, "-q", other, "compile", "wipe")
	require.NoError(t, err)
	assert.Contains(t, out, `TRUNCATE "logs"`)
}
