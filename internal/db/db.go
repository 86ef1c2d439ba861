// Package db opens the case store: one SQLite file per workspace.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".disputehub"
	fileName = "disputehub.db"
)

type Config struct {
	Workspace string
}

func (c Config) dir() string {
	ws := c.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, stateDir)
}

// EnsureWorkspace makes sure <workspace>/.disputehub exists and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Config{Workspace: workspace}.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// Open returns a handle on the workspace store. Every connection enforces
// foreign keys, waits on a busy database and begins transactions IMMEDIATE,
// so the gate's lock compare-and-set serializes across processes.
func Open(cfg Config) (*sql.DB, error) {
	dir, err := EnsureWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return sql.Open("sqlite", "file:"+filepath.Join(dir, fileName)+"?"+q.Encode())
}
