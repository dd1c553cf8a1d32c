package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/dburl"
)

func TestExecSQLite(t *testing.T) {
	out, _, err := run(t, "exec", filepath.Join("testdata", "exec.yaml"), "--db", "sqlite::memory:")
	require.NoError(t, err)

	assert.Contains(t, out, "-- add two\n✓ 2 row(s) affected\n")
	assert.Contains(t, out, "-- add one\n3\n")
	assert.Contains(t, out, "-- rename\n✓ 1 row(s) affected\n")
	assert.Regexp(t, `(?m)^Id\s+Code\s+Name$`, out)
	assert.Regexp(t, `(?m)^2\s+c2\s+deux$`, out)
	assert.Contains(t, out, "(3 row(s))\n")
	assert.Contains(t, out, "-- count\n3\n")
}

func TestExecDatabaseFromConfig(t *testing.T) {
	dir := t.TempDir()
	url := "sqlite:" + filepath.Join(dir, "exec.db")
	_, _, err := runIn(t, dir, "init", "--db", url)
	require.NoError(t, err)

	out, _, err := runIn(t, dir, "exec", filepath.Join("testdata", "exec.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "-- count\n3\n")

	// the table now exists, so running the file again fails on CREATE TABLE
	_, _, err = runIn(t, dir, "exec", filepath.Join("testdata", "exec.yaml"))
	assert.Error(t, err)
}

func TestExecErrors(t *testing.T) {
	_, _, err := run(t, "exec", filepath.Join("testdata", "exec.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database URL")

	_, _, err = run(t, "exec", filepath.Join("testdata", "exec.yaml"), "--db", "sqlserver://localhost/shop")
	assert.ErrorIs(t, err, dburl.ErrNoDriver)
}
