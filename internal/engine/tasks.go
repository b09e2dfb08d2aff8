package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"chorus/internal/domain"
	"chorus/internal/repo"
)

func validTaskType(t domain.TaskType) bool {
	for _, v := range domain.TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// CreateTask adds a task to a project. With parentID set the task becomes a
// subtask and must live in the parent's project.
func (e Engine) CreateTask(ctx context.Context, projectID string, parentID *string, in domain.TaskCreate) (domain.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Task{}, invalid("name is required")
	}
	if !validTaskType(in.TaskType) {
		return domain.Task{}, invalid("task_type must be one of feature, bug, tech_debt")
	}
	if in.Position != nil && *in.Position < 0 {
		return domain.Task{}, invalid("position must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProject(ctx, tx, projectID); err != nil {
		return domain.Task{}, orNotFound(err, "project")
	}
	if parentID != nil {
		parent, err := e.Repo.GetTask(ctx, tx, *parentID)
		if err != nil {
			return domain.Task{}, orNotFound(err, "parent task")
		}
		if parent.ProjectID != projectID {
			return domain.Task{}, badRequest("parent task belongs to a different project")
		}
	}
	var position int
	if in.Position != nil {
		position = *in.Position
	} else {
		position, err = e.Repo.NextPosition(ctx, tx, projectID, parentID)
		if err != nil {
			return domain.Task{}, err
		}
	}
	now := repo.Timestamp(e.now())
	rec := repo.TaskRecord{Task: domain.Task{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		ParentTaskID: parentID,
		Name:         name,
		Description:  in.Description,
		Context:      in.Context,
		TaskType:     in.TaskType,
		Status:       domain.StatusTodo,
		Position:     position,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	if err := e.Repo.InsertTask(ctx, tx, rec); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.GetTask(ctx, rec.ID)
}

// CreateSubtask adds a child under parentID in the parent's project.
func (e Engine) CreateSubtask(ctx context.Context, parentID string, in domain.TaskCreate) (domain.Task, error) {
	parent, err := e.Repo.GetTask(ctx, nil, parentID)
	if err != nil {
		return domain.Task{}, orNotFound(err, "parent task")
	}
	return e.CreateTask(ctx, parent.ProjectID, &parentID, in)
}

// ProjectTasks returns the root tasks of a project by position.
func (e Engine) ProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return nil, orNotFound(err, "project")
	}
	f, err := e.loadForest(ctx, nil, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(f.roots))
	for _, id := range f.roots {
		out = append(out, f.task(id))
	}
	return out, nil
}

// forestFor loads the project forest that contains taskID.
func (e Engine) forestFor(ctx context.Context, tx *sql.Tx, taskID string) (*forest, error) {
	rec, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return nil, orNotFound(err, "task")
	}
	return e.loadForest(ctx, tx, rec.ProjectID)
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	f, err := e.forestFor(ctx, nil, id)
	if err != nil {
		return domain.Task{}, err
	}
	return f.task(id), nil
}

// TaskTree returns the subtree rooted at id, children in position order.
func (e Engine) TaskTree(ctx context.Context, id string) (domain.TaskTreeNode, error) {
	f, err := e.forestFor(ctx, nil, id)
	if err != nil {
		return domain.TaskTreeNode{}, err
	}
	return f.tree(id), nil
}

// UpdateTask applies the fields present in in.
func (e Engine) UpdateTask(ctx context.Context, id string, in domain.TaskUpdate) (domain.Task, error) {
	rec, err := e.Repo.GetTask(ctx, nil, id)
	if err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.Task{}, invalid("name must not be empty")
		}
		rec.Name = name
	}
	if in.Description != nil {
		rec.Description = in.Description
	}
	if in.Context != nil {
		rec.Context = in.Context
	}
	if in.TaskType != nil {
		if !validTaskType(*in.TaskType) {
			return domain.Task{}, invalid("task_type must be one of feature, bug, tech_debt")
		}
		rec.TaskType = *in.TaskType
	}
	rec.UpdatedAt = repo.Timestamp(e.now())
	if err := e.Repo.UpdateTask(ctx, nil, rec); err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	return e.GetTask(ctx, id)
}

// DeleteTask removes a task with its whole subtree.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	return orNotFound(e.Repo.DeleteTask(ctx, id), "task")
}

// UpdateStatus moves a task through the status machine. Completing a parent
// needs every descendant terminal and at least one done; reopening a done
// task also reopens its done parent.
func (e Engine) UpdateStatus(ctx context.Context, id string, to domain.Status) (domain.Task, error) {
	if !domain.ValidStatus(to) {
		return domain.Task{}, invalid("unknown status %q", to)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	f, err := e.forestFor(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	rec := f.byID[id]
	from := rec.Status
	if from == to {
		return f.task(id), nil
	}
	if !domain.CanTransition(from, to) {
		return domain.Task{}, &RuleError{
			Kind:    KindValidation,
			Code:    CodeInvalidStatusTransition,
			Message: "invalid transition from " + string(from) + " to " + string(to),
			Details: map[string]any{"from": string(from), "to": string(to)},
		}
	}
	if to == domain.StatusDone && len(f.children[id]) > 0 {
		allTerminal, anyDone := f.descendants(id)
		if !allTerminal {
			return domain.Task{}, invalid("cannot complete: not all descendants are terminal (done/wont_do)")
		}
		if !anyDone {
			return domain.Task{}, invalid("cannot complete: at least one descendant must be done")
		}
	}
	now := repo.Timestamp(e.now())
	rec.Status = to
	rec.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, rec); err != nil {
		return domain.Task{}, err
	}
	if from == domain.StatusDone && (to == domain.StatusTodo || to == domain.StatusDoing) && rec.ParentTaskID != nil {
		parent := f.byID[*rec.ParentTaskID]
		if parent.Status == domain.StatusDone {
			parent.Status = domain.StatusTodo
			parent.UpdatedAt = now
			if err := e.Repo.UpdateTask(ctx, tx, parent); err != nil {
				return domain.Task{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.GetTask(ctx, id)
}

// Reorder places a task at position, shifting later siblings down.
func (e Engine) Reorder(ctx context.Context, id string, position int) (domain.Task, error) {
	if position < 0 {
		return domain.Task{}, invalid("position must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	now := repo.Timestamp(e.now())
	if err := e.Repo.ShiftSiblings(ctx, tx, rec.ProjectID, rec.ParentTaskID, position, rec.ID, now); err != nil {
		return domain.Task{}, err
	}
	rec.Position = position
	rec.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, rec); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.GetTask(ctx, id)
}
