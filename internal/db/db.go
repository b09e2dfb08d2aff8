// Package db opens the SQLite file that backs a Chorus workspace.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".chorus"
	fileName     = "chorus.db"

	DefaultBusyTimeout = 5 * time.Second
)

type Config struct {
	// Workspace is the directory holding .chorus/. Empty means ".".
	Workspace string
	// BusyTimeout bounds how long a writer waits for the file lock.
	BusyTimeout time.Duration
}

func (c Config) workspace() string {
	if c.Workspace == "" {
		return "."
	}
	return c.Workspace
}

// Path returns the database file inside workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.workspace(), workspaceDir, fileName)
}

// EnsureWorkspace creates the .chorus directory under workspace if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(Config{Workspace: workspace}.workspace(), workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// DSN builds the driver string. Every connection enforces foreign keys and
// takes the write lock when a transaction begins, so concurrent writers queue
// on the busy timeout instead of failing mid-transaction.
func DSN(cfg Config) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		Path(cfg.Workspace), busy.Milliseconds())
}

// Open creates the workspace if needed and returns a checked connection pool.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
