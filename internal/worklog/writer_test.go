package worklog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chorus/internal/db"
	"chorus/internal/domain"
	"chorus/internal/migrate"
	"chorus/internal/repo"
	"chorus/internal/worklog"
)

func TestAppend(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ts := repo.Timestamp(now)
	if err := r.InsertProject(ctx, nil, domain.Project{ID: "p1", Name: "Apollo", CreatedAt: ts, UpdatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertTask(ctx, nil, repo.TaskRecord{Task: domain.Task{
		ID: "t1", ProjectID: "p1", Name: "Parse", TaskType: domain.TaskTypeFeature,
		Status: domain.StatusTodo, CreatedAt: ts, UpdatedAt: ts,
	}}); err != nil {
		t.Fatal(err)
	}

	w := worklog.Writer{Repo: r, Now: func() time.Time { return now }}
	if _, err := w.Append(ctx, nil, "t1", domain.OperationNote, "  ", nil); !errors.Is(err, worklog.ErrEmptyContent) {
		t.Fatalf("blank content: %v", err)
	}
	if _, err := w.Append(ctx, nil, "t1", domain.Operation("gossip"), "hi", nil); err == nil {
		t.Fatalf("unknown operation accepted")
	}

	empty := ""
	entry, err := w.Append(ctx, nil, "t1", domain.OperationSizing, "scored 4", &empty)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.Author != nil || entry.CreatedAt != ts || entry.ID == "" {
		t.Fatalf("entry: %+v", entry)
	}
	now = now.Add(time.Minute)
	author := "agent-7"
	if _, err := w.Append(ctx, nil, "t1", domain.OperationNote, "follow-up", &author); err != nil {
		t.Fatal(err)
	}

	entries, err := r.ListWorkLog(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Content != "scored 4" || *entries[1].Author != "agent-7" {
		t.Fatalf("entries: %+v", entries)
	}
}
