// Package db opens the workspace-scoped SQLite database. Each workspace
// keeps its state under a hidden .loopline/ directory so that a repository
// or project directory can double as a loop board.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".loopline"
	dbName   = "loopline.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the hidden state directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure workspace: %w", err)
	}
	return dir, nil
}

// Path returns the database file path for a workspace without creating
// anything.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, dbName)
}

// Open ensures the workspace exists and opens its database. Single-writer
// access is enforced upstream by the engine mutex; the connection itself
// only needs foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}
