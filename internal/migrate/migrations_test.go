package migrate_test

import (
	"context"
	"testing"

	"chorus/internal/db"
	"chorus/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if v, err := migrate.Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh db version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.MigrateContext(ctx, conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if v, err := migrate.Version(ctx, conn); err != nil || v != latest {
		t.Fatalf("version = %d, %v; want %d", v, err, latest)
	}

	for _, table := range []string{"projects", "tasks", "task_locks", "work_log_entries", "task_commits"} {
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestStepsAreOrdered(t *testing.T) {
	steps, err := migrate.Steps()
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) == 0 || steps[0].Version != 1 {
		t.Fatalf("steps: %+v", steps)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Version <= steps[i-1].Version {
			t.Fatalf("steps out of order: %s before %s", steps[i-1].Name, steps[i].Name)
		}
	}
}
