package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := os.Stat(filepath.Join(dir, ".chorus", "chorus.db")); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	var fk int
	if err := conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("foreign_keys = %d, %v", fk, err)
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(Config{Workspace: "/srv/work", BusyTimeout: 250 * time.Millisecond})
	if !strings.HasPrefix(dsn, "file:/srv/work/.chorus/chorus.db?") {
		t.Fatalf("dsn path: %s", dsn)
	}
	if !strings.Contains(dsn, "busy_timeout(250)") || !strings.Contains(dsn, "_txlock=immediate") {
		t.Fatalf("dsn options: %s", dsn)
	}
	if !strings.Contains(DSN(Config{}), "busy_timeout(5000)") {
		t.Fatalf("default busy timeout missing")
	}
	if Path("") != filepath.Join(".", ".chorus", "chorus.db") {
		t.Fatalf("default path: %s", Path(""))
	}
}
