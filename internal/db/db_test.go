package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	_, err = os.Stat(filepath.Join(ws, stateDir, fileName))
	assert.NoError(t, err)
}

func TestEnsureWorkspace(t *testing.T) {
	ws := t.TempDir()
	dir, err := EnsureWorkspace(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, stateDir), dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
