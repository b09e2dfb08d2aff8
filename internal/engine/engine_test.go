package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chorus/internal/db"
	"chorus/internal/domain"
	"chorus/internal/engine"
	"chorus/internal/migrate"
	"chorus/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
	now     *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{Ctx: context.Background()}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env.now = &now
	env.Engine = engine.New(conn)
	env.Engine.Now = func() time.Time { return *env.now }
	p, err := env.Engine.CreateProject(env.Ctx, domain.ProjectCreate{Name: "Apollo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	env.Project = p
	return env
}

// advance moves the clock so created_at values stay distinct.
func (env *testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func (env *testEnv) task(t *testing.T, name string, parent *domain.Task) domain.Task {
	t.Helper()
	env.advance(time.Second)
	in := domain.TaskCreate{Name: name, TaskType: domain.TaskTypeFeature}
	var (
		task domain.Task
		err  error
	)
	if parent != nil {
		task, err = env.Engine.CreateSubtask(env.Ctx, parent.ID, in)
	} else {
		task, err = env.Engine.CreateTask(env.Ctx, env.Project.ID, nil, in)
	}
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return task
}

func (env *testEnv) size(t *testing.T, id string, scores ...int) domain.Task {
	t.Helper()
	var s [5]int
	copy(s[:], scores)
	task, err := env.Engine.SizeTask(env.Ctx, id, domain.SizingRequest{
		ScopeClarity:           domain.DimensionScore{Score: s[0]},
		DecisionPoints:         domain.DimensionScore{Score: s[1]},
		ContextWindowDemand:    domain.DimensionScore{Score: s[2]},
		VerificationComplexity: domain.DimensionScore{Score: s[3]},
		DomainSpecificity:      domain.DimensionScore{Score: s[4]},
		Confidence:             4,
		WorkLogContent:         "sized",
	})
	if err != nil {
		t.Fatalf("size %s: %v", id, err)
	}
	return task
}

func (env *testEnv) status(t *testing.T, id string, to domain.Status) domain.Task {
	t.Helper()
	task, err := env.Engine.UpdateStatus(env.Ctx, id, to)
	if err != nil {
		t.Fatalf("status %s -> %s: %v", id, to, err)
	}
	return task
}

func ruleError(t *testing.T, err error, code string) *engine.RuleError {
	t.Helper()
	var re *engine.RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected rule error %s, got %v", code, err)
	}
	if re.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, re.Code, re.Message)
	}
	return re
}

func TestCreateTaskPositionsAndParents(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "a", nil)
	b := env.task(t, "b", nil)
	if a.Position != 0 || b.Position != 1 {
		t.Fatalf("positions: %d %d", a.Position, b.Position)
	}
	child := env.task(t, "a.1", &a)
	if child.Position != 0 || child.ParentTaskID == nil || *child.ParentTaskID != a.ID || child.ProjectID != env.Project.ID {
		t.Fatalf("child: %+v", child)
	}
	if child.Status != domain.StatusTodo || child.Readiness != domain.ReadinessNeedsSizing {
		t.Fatalf("new task defaults: %s %s", child.Status, child.Readiness)
	}

	other, err := env.Engine.CreateProject(env.Ctx, domain.ProjectCreate{Name: "Gemini"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, other.ID, &a.ID, domain.TaskCreate{Name: "x", TaskType: domain.TaskTypeBug})
	ruleError(t, err, engine.CodeBadRequest)

	_, err = env.Engine.CreateTask(env.Ctx, env.Project.ID, nil, domain.TaskCreate{Name: "x", TaskType: "epic"})
	ruleError(t, err, engine.CodeValidation)

	if _, err := env.Engine.CreateSubtask(env.Ctx, "missing", domain.TaskCreate{Name: "x", TaskType: domain.TaskTypeBug}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	roots, err := env.Engine.ProjectTasks(env.Ctx, env.Project.ID)
	if err != nil || len(roots) != 2 || roots[0].ID != a.ID || roots[0].ChildrenCount != 1 {
		t.Fatalf("roots: %v %+v", err, roots)
	}
}

func TestDerivedPoints(t *testing.T) {
	env := newTestEnv(t)
	parent := env.task(t, "parent", nil)
	c1 := env.task(t, "c1", &parent)
	c2 := env.task(t, "c2", &parent)

	got, _ := env.Engine.GetTask(env.Ctx, parent.ID)
	if got.RolledUpPoints != nil || got.EffectivePoints != nil || got.UnsizedChildren != 2 || got.Readiness != domain.ReadinessNeedsBreakdown {
		t.Fatalf("unsized children: %+v", got)
	}

	env.size(t, c1.ID, 1, 1)
	got, _ = env.Engine.GetTask(env.Ctx, parent.ID)
	if got.RolledUpPoints == nil || *got.RolledUpPoints != 2 || got.UnsizedChildren != 1 || got.Readiness != domain.ReadinessNeedsBreakdown {
		t.Fatalf("one sized child: %+v", got)
	}

	env.size(t, c2.ID, 1)
	got, _ = env.Engine.GetTask(env.Ctx, parent.ID)
	if *got.EffectivePoints != 3 || got.UnsizedChildren != 0 || got.Readiness != domain.ReadinessBlockedByChildren {
		t.Fatalf("all sized: %+v", got)
	}

	leaf, _ := env.Engine.GetTask(env.Ctx, c1.ID)
	if leaf.RolledUpPoints != nil || *leaf.EffectivePoints != 2 || leaf.Readiness != domain.ReadinessReady {
		t.Fatalf("leaf: %+v", leaf)
	}

	big := env.task(t, "big", nil)
	big = env.size(t, big.ID, 2, 2, 2, 1)
	if big.Readiness != domain.ReadinessNeedsBreakdown || *big.Points != 7 {
		t.Fatalf("big: %+v", big)
	}
}

func TestTaskTreeOrder(t *testing.T) {
	env := newTestEnv(t)
	root := env.task(t, "root", nil)
	first := env.task(t, "first", &root)
	second := env.task(t, "second", &root)
	env.task(t, "first.1", &first)
	if _, err := env.Engine.Reorder(env.Ctx, second.ID, 0); err != nil {
		t.Fatal(err)
	}
	tree, err := env.Engine.TaskTree(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 2 || tree.Children[0].ID != second.ID || tree.Children[1].ID != first.ID {
		t.Fatalf("order after reorder: %+v", tree.Children)
	}
	if len(tree.Children[1].Children) != 1 || tree.Children[0].Children == nil {
		t.Fatalf("grandchildren: %+v", tree.Children)
	}
	moved, _ := env.Engine.GetTask(env.Ctx, first.ID)
	if moved.Position != 1 {
		t.Fatalf("sibling should shift to 1, got %d", moved.Position)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "work", nil)

	same := env.status(t, task.ID, domain.StatusTodo)
	if same.UpdatedAt != task.UpdatedAt {
		t.Fatalf("same status should be a no-op")
	}
	_, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusDone)
	re := ruleError(t, err, engine.CodeInvalidStatusTransition)
	if re.Details["from"] != "todo" || re.Details["to"] != "done" {
		t.Fatalf("details: %v", re.Details)
	}
	env.status(t, task.ID, domain.StatusDoing)
	if got := env.status(t, task.ID, domain.StatusDone); got.Status != domain.StatusDone {
		t.Fatalf("status: %s", got.Status)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, task.ID, "paused"); err == nil {
		t.Fatalf("expected unknown status error")
	}
}

func TestCompletingParentNeedsFinishedChildren(t *testing.T) {
	env := newTestEnv(t)
	parent := env.task(t, "parent", nil)
	a := env.task(t, "a", &parent)
	b := env.task(t, "b", &parent)
	env.status(t, parent.ID, domain.StatusDoing)

	_, err := env.Engine.UpdateStatus(env.Ctx, parent.ID, domain.StatusDone)
	ruleError(t, err, engine.CodeValidation)

	env.status(t, a.ID, domain.StatusWontDo)
	env.status(t, b.ID, domain.StatusWontDo)
	_, err = env.Engine.UpdateStatus(env.Ctx, parent.ID, domain.StatusDone)
	re := ruleError(t, err, engine.CodeValidation)
	if re.Message != "cannot complete: at least one descendant must be done" {
		t.Fatalf("message: %s", re.Message)
	}

	env.status(t, b.ID, domain.StatusTodo)
	env.status(t, b.ID, domain.StatusDoing)
	env.status(t, b.ID, domain.StatusDone)
	env.status(t, parent.ID, domain.StatusDone)

	// reopening a done child reopens the done parent
	env.status(t, b.ID, domain.StatusTodo)
	got, _ := env.Engine.GetTask(env.Ctx, parent.ID)
	if got.Status != domain.StatusTodo {
		t.Fatalf("parent should reopen, got %s", got.Status)
	}
}

func TestLockLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "lockme", nil)

	l, err := env.Engine.AcquireLock(env.Ctx, task.ID, domain.LockAcquire{CallerLabel: "agent-1", LockPurpose: domain.LockPurposeSizing})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if want := repo.Timestamp(env.now.Add(15 * time.Minute)); l.ExpiresAt != want {
		t.Fatalf("expires %s want %s", l.ExpiresAt, want)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if !got.IsLocked {
		t.Fatalf("task should be locked")
	}

	_, err = env.Engine.AcquireLock(env.Ctx, task.ID, domain.LockAcquire{CallerLabel: "agent-2", LockPurpose: domain.LockPurposeRefinement})
	ruleError(t, err, engine.CodeLockConflict)

	_, err = env.Engine.HeartbeatLock(env.Ctx, task.ID, "agent-2")
	ruleError(t, err, engine.CodeForbidden)

	env.advance(10 * time.Minute)
	beat, err := env.Engine.HeartbeatLock(env.Ctx, task.ID, "agent-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if beat.LastHeartbeatAt == nil || beat.ExpiresAt != repo.Timestamp(env.now.Add(15*time.Minute)) {
		t.Fatalf("heartbeat: %+v", beat)
	}

	err = env.Engine.ReleaseLock(env.Ctx, task.ID, "dashboard", false)
	ruleError(t, err, engine.CodeForbidden)
	if err := env.Engine.ReleaseLock(env.Ctx, task.ID, "dashboard", true); err != nil {
		t.Fatalf("force release: %v", err)
	}
	if err := env.Engine.ReleaseLock(env.Ctx, task.ID, "agent-1", false); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpiredLocks(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "stale", nil)
	if _, err := env.Engine.AcquireLock(env.Ctx, task.ID, domain.LockAcquire{CallerLabel: "agent-1", LockPurpose: domain.LockPurposeRefinement}); err != nil {
		t.Fatal(err)
	}
	env.advance(31 * time.Minute)

	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.IsLocked {
		t.Fatalf("expired lock must not count")
	}
	_, err := env.Engine.HeartbeatLock(env.Ctx, task.ID, "agent-1")
	ruleError(t, err, engine.CodeLockConflict)

	// an expired lock is replaced on acquire
	l, err := env.Engine.AcquireLock(env.Ctx, task.ID, domain.LockAcquire{CallerLabel: "agent-2", LockPurpose: domain.LockPurposeRefinement})
	if err != nil || l.CallerLabel != "agent-2" {
		t.Fatalf("reacquire: %v %+v", err, l)
	}
	env.advance(31 * time.Minute)
	n, err := env.Engine.CleanupExpiredLocks(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleanup: %d %v", n, err)
	}
	if _, err := env.Engine.Repo.GetLock(env.Ctx, nil, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("lock should be gone: %v", err)
	}
}

func TestLockPreconditions(t *testing.T) {
	env := newTestEnv(t)
	small := env.task(t, "small", nil)
	env.size(t, small.ID, 1, 1)

	_, err := env.Engine.AcquireLock(env.Ctx, small.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeSizing})
	ruleError(t, err, engine.CodeValidation)
	_, err = env.Engine.AcquireLock(env.Ctx, small.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeBreakdown})
	ruleError(t, err, engine.CodeValidation)
	if _, err := env.Engine.AcquireLock(env.Ctx, small.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeImplementation}); err != nil {
		t.Fatalf("ready task should lock for implementation: %v", err)
	}

	unsized := env.task(t, "unsized", nil)
	_, err = env.Engine.AcquireLock(env.Ctx, unsized.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeBreakdown})
	ruleError(t, err, engine.CodeValidation)
	_, err = env.Engine.AcquireLock(env.Ctx, unsized.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeImplementation})
	ruleError(t, err, engine.CodeValidation)

	big := env.task(t, "big", nil)
	env.size(t, big.ID, 2, 2, 2, 2)
	if _, err := env.Engine.AcquireLock(env.Ctx, big.ID, domain.LockAcquire{CallerLabel: "a", LockPurpose: domain.LockPurposeBreakdown}); err != nil {
		t.Fatalf("big task should lock for breakdown: %v", err)
	}
}

func TestDiscovery(t *testing.T) {
	env := newTestEnv(t)
	three := env.task(t, "three", nil)
	env.size(t, three.ID, 1, 1, 1)
	one := env.task(t, "one", nil)
	env.size(t, one.ID, 1)
	env.task(t, "unsized", nil)
	flagged := env.task(t, "flagged", nil)
	env.size(t, flagged.ID, 1)
	if _, err := env.Engine.FlagRefinement(env.Ctx, flagged.ID, "unclear"); err != nil {
		t.Fatal(err)
	}

	backlog, err := env.Engine.Backlog(env.Ctx, env.Project.ID, engine.DefaultPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(backlog) != 2 || backlog[0].ID != one.ID || backlog[1].ID != three.ID {
		t.Fatalf("backlog: %+v", backlog)
	}
	if page, _ := env.Engine.Backlog(env.Ctx, env.Project.ID, engine.Page{Limit: 1, Offset: 1}); len(page) != 1 || page[0].ID != three.ID {
		t.Fatalf("paged backlog: %+v", page)
	}

	low := env.task(t, "low confidence", nil)
	if _, err := env.Engine.SizeTask(env.Ctx, low.ID, domain.SizingRequest{Confidence: 1, WorkLogContent: "guess"}); err != nil {
		t.Fatal(err)
	}
	refine, err := env.Engine.NeedsRefinement(env.Ctx, env.Project.ID, engine.DefaultPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(refine) != 2 || refine[0].ID != low.ID || refine[1].ID != flagged.ID {
		t.Fatalf("needs refinement: %+v", refine)
	}

	env.status(t, one.ID, domain.StatusDoing)
	env.status(t, three.ID, domain.StatusDoing)
	if _, err := env.Engine.AcquireLock(env.Ctx, three.ID, domain.LockAcquire{CallerLabel: "agent-7", LockPurpose: domain.LockPurposeRefinement}); err != nil {
		t.Fatal(err)
	}
	doing, err := env.Engine.InProgress(env.Ctx, env.Project.ID, engine.DefaultPage)
	if err != nil || len(doing) != 2 {
		t.Fatalf("in progress: %v %+v", err, doing)
	}
	if doing[0].LockCallerLabel != nil || doing[1].LockCallerLabel == nil || *doing[1].LockCallerLabel != "agent-7" {
		t.Fatalf("lock info: %+v", doing)
	}
	env.advance(time.Hour)
	doing, _ = env.Engine.InProgress(env.Ctx, env.Project.ID, engine.DefaultPage)
	if doing[1].LockCallerLabel != nil {
		t.Fatalf("expired lock should not be reported")
	}
}

func TestSizeRefineAndWorkLog(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "sizing", nil)
	_, err := env.Engine.SizeTask(env.Ctx, task.ID, domain.SizingRequest{
		ScopeClarity:   domain.DimensionScore{Score: 3},
		WorkLogContent: "too high",
	})
	ruleError(t, err, engine.CodeValidation)
	_, err = env.Engine.SizeTask(env.Ctx, task.ID, domain.SizingRequest{Confidence: 3})
	ruleError(t, err, engine.CodeValidation)

	sized := env.size(t, task.ID, 2, 1, 0, 1, 1)
	if sized.Points == nil || *sized.Points != 5 {
		t.Fatalf("points: %+v", sized.Points)
	}
	rec, err := env.Engine.Repo.GetTask(env.Ctx, nil, task.ID)
	if err != nil || rec.SizingConfidence == nil || *rec.SizingConfidence != 4 || rec.PointsBreakdown == nil {
		t.Fatalf("sizing columns: %v %+v", err, rec)
	}

	if _, err := env.Engine.FlagRefinement(env.Ctx, task.ID, "needs context"); err != nil {
		t.Fatal(err)
	}
	desc := "clearer"
	author := "agent-1"
	refined, err := env.Engine.RefineTask(env.Ctx, task.ID, domain.RefineRequest{Description: &desc, WorkLogContent: "rewrote", Author: &author})
	if err != nil {
		t.Fatal(err)
	}
	if refined.Readiness == domain.ReadinessNeedsRefinement || refined.Description == nil || *refined.Description != desc {
		t.Fatalf("refined: %+v", refined)
	}

	env.advance(time.Second)
	if _, err := env.Engine.AddWorkLog(env.Ctx, task.ID, domain.WorkLogCreate{Operation: "dance", Content: "x"}); err == nil {
		t.Fatalf("expected operation error")
	}
	if _, err := env.Engine.AddWorkLog(env.Ctx, task.ID, domain.WorkLogCreate{Operation: domain.OperationNote, Content: "looked again"}); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Engine.WorkLog(env.Ctx, task.ID)
	if err != nil || len(entries) != 3 {
		t.Fatalf("work log: %v %+v", err, entries)
	}
	if entries[0].Operation != domain.OperationSizing || entries[1].Operation != domain.OperationRefinement || *entries[1].Author != author || entries[2].Operation != domain.OperationNote {
		t.Fatalf("work log order: %+v", entries)
	}
}

func TestCommits(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "ship", nil)
	msg := "fix the thing"
	if _, err := env.Engine.AddCommit(env.Ctx, task.ID, domain.CommitCreate{CommitHash: "abc", CommittedAt: "yesterday"}); err == nil {
		t.Fatalf("expected timestamp error")
	}
	later, err := env.Engine.AddCommit(env.Ctx, task.ID, domain.CommitCreate{CommitHash: "bbbbbbbbbb", Message: &msg, CommittedAt: "2025-03-02T10:00:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddCommit(env.Ctx, task.ID, domain.CommitCreate{CommitHash: "aaaaaaaaaa", CommittedAt: "2025-03-01T10:00:00+02:00"}); err != nil {
		t.Fatal(err)
	}
	commits, err := env.Engine.Commits(env.Ctx, task.ID)
	if err != nil || len(commits) != 2 || commits[1].ID != later.ID || commits[0].CommittedAt != "2025-03-01T08:00:00.000000Z" {
		t.Fatalf("commits: %v %+v", err, commits)
	}
}

func TestProjectsAggregates(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "a", nil)
	b := env.task(t, "b", nil)
	env.size(t, a.ID, 2, 1)
	env.size(t, b.ID, 1, 1, 1, 1)
	env.status(t, a.ID, domain.StatusDoing)
	env.status(t, a.ID, domain.StatusDone)

	d, err := env.Engine.GetProject(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.TaskCount != 2 || d.PointsTotal != 7 || d.PointsCompleted != 3 {
		t.Fatalf("aggregates: %+v", d)
	}

	env.advance(time.Second)
	empty, err := env.Engine.CreateProject(env.Ctx, domain.ProjectCreate{Name: "Empty"})
	if err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListProjects(env.Ctx)
	if err != nil || len(list) != 2 || list[0].ID != env.Project.ID || list[1].ID != empty.ID || list[1].TaskCount != 0 {
		t.Fatalf("list: %v %+v", err, list)
	}

	name := "Apollo 11"
	p, err := env.Engine.UpdateProject(env.Ctx, env.Project.ID, domain.ProjectUpdate{Name: &name})
	if err != nil || p.Name != name || p.Description != nil {
		t.Fatalf("update: %v %+v", err, p)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, domain.ProjectCreate{Name: "  "}); err == nil {
		t.Fatalf("expected name error")
	}

	if err := env.Engine.DeleteProject(env.Ctx, env.Project.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("tasks should cascade: %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, env.Project.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	root := env.task(t, "root", nil)
	child := env.task(t, "child", &root)
	if err := env.Engine.DeleteTask(env.Ctx, root.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, child.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("child should be gone: %v", err)
	}
}
