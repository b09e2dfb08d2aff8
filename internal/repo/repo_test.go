package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chorus/internal/db"
	"chorus/internal/domain"
	"chorus/internal/migrate"
	"chorus/internal/repo"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	ts := repo.Timestamp(base)
	if err := r.InsertProject(ctx, nil, domain.Project{ID: "p1", Name: "Apollo", CreatedAt: ts, UpdatedAt: ts}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return r, ctx
}

func insertTask(t *testing.T, r repo.Repo, ctx context.Context, id string, parent *string, position int) {
	t.Helper()
	ts := repo.Timestamp(base)
	err := r.InsertTask(ctx, nil, repo.TaskRecord{Task: domain.Task{
		ID: id, ProjectID: "p1", ParentTaskID: parent, Name: id,
		TaskType: domain.TaskTypeFeature, Status: domain.StatusTodo,
		Position: position, CreatedAt: ts, UpdatedAt: ts,
	}})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestTimestampOrdersLexically(t *testing.T) {
	a := repo.Timestamp(base)
	b := repo.Timestamp(base.Add(time.Microsecond))
	c := repo.Timestamp(base.Add(10 * time.Second))
	if !(a < b && b < c) {
		t.Fatalf("timestamps out of order: %s %s %s", a, b, c)
	}
	if len(a) != len(c) {
		t.Fatalf("timestamps not fixed width: %s %s", a, c)
	}
	back, err := repo.ParseTimestamp(b)
	if err != nil || !back.Equal(base.Add(time.Microsecond)) {
		t.Fatalf("parse %s: %v %v", b, back, err)
	}
}

func TestPositionsAndShift(t *testing.T) {
	r, ctx := newRepo(t)
	if pos, err := r.NextPosition(ctx, nil, "p1", nil); err != nil || pos != 0 {
		t.Fatalf("first position = %d, %v", pos, err)
	}
	insertTask(t, r, ctx, "a", nil, 0)
	insertTask(t, r, ctx, "b", nil, 1)
	parent := "a"
	insertTask(t, r, ctx, "a1", &parent, 0)

	if pos, err := r.NextPosition(ctx, nil, "p1", nil); err != nil || pos != 2 {
		t.Fatalf("next root position = %d, %v", pos, err)
	}
	if pos, err := r.NextPosition(ctx, nil, "p1", &parent); err != nil || pos != 1 {
		t.Fatalf("next child position = %d, %v", pos, err)
	}

	if err := r.ShiftSiblings(ctx, nil, "p1", nil, 0, "b", repo.Timestamp(base)); err != nil {
		t.Fatalf("shift: %v", err)
	}
	tasks, err := r.ListProjectTasks(ctx, nil, "p1")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int{}
	for _, task := range tasks {
		got[task.ID] = task.Position
	}
	if got["a"] != 1 || got["b"] != 1 || got["a1"] != 0 {
		t.Fatalf("positions after shift: %v", got)
	}
}

func TestNotFound(t *testing.T) {
	r, ctx := newRepo(t)
	if _, err := r.GetTask(ctx, nil, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get task: %v", err)
	}
	if err := r.DeleteTask(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := r.GetLock(ctx, nil, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get lock: %v", err)
	}
}

func TestDeleteExpiredLocks(t *testing.T) {
	r, ctx := newRepo(t)
	insertTask(t, r, ctx, "a", nil, 0)
	insertTask(t, r, ctx, "b", nil, 1)
	for id, expires := range map[string]time.Time{"a": base.Add(-time.Minute), "b": base.Add(time.Hour)} {
		err := r.InsertLock(ctx, nil, domain.Lock{
			ID: "lock-" + id, TaskID: id, CallerLabel: "agent",
			LockPurpose: domain.LockPurposeSizing,
			AcquiredAt:  repo.Timestamp(base.Add(-time.Hour)),
			ExpiresAt:   repo.Timestamp(expires),
		})
		if err != nil {
			t.Fatalf("insert lock %s: %v", id, err)
		}
	}
	n, err := r.DeleteExpiredLocks(ctx, repo.Timestamp(base))
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, %v", n, err)
	}
	locks, err := r.ListProjectLocks(ctx, nil, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := locks["b"]; !ok || len(locks) != 1 {
		t.Fatalf("remaining locks: %v", locks)
	}
}

func TestProjectDeleteCascades(t *testing.T) {
	r, ctx := newRepo(t)
	insertTask(t, r, ctx, "a", nil, 0)
	if err := r.DeleteProject(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetTask(ctx, nil, "a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task should be gone, got %v", err)
	}
}
