package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/internal/config"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()

	out, _, err := runIn(t, dir, "init", "--dialect", "MSSQL")
	require.NoError(t, err)
	assert.Equal(t, "✓ wrote opsql.ini\n", out)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", cfg.Compiler.Dialect)
	assert.True(t, cfg.Compiler.Parameterized)
	assert.Empty(t, cfg.Database.URL)

	_, _, err = runIn(t, dir, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runIn(t, dir, "init", "--force", "--db", "postgres://localhost/shop")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, config.ConfigFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "url = postgres://localhost/shop")
	assert.NotContains(t, string(data), "dialect")
}

func TestInitRejectsBadValues(t *testing.T) {
	_, _, err := run(t, "init", "--dialect", "db2")
	assert.Error(t, err)

	_, _, err = run(t, "init", "--db", "redis://localhost")
	assert.Error(t, err)
}
