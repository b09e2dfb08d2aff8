package chorussdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"chorus/internal/domain"
)

type (
	Project          = domain.Project
	ProjectDetail    = domain.ProjectDetail
	ProjectCreate    = domain.ProjectCreate
	ProjectUpdate    = domain.ProjectUpdate
	Task             = domain.Task
	TaskTreeNode     = domain.TaskTreeNode
	TaskWithLockInfo = domain.TaskWithLockInfo
	TaskCreate       = domain.TaskCreate
	TaskUpdate       = domain.TaskUpdate
	Lock             = domain.Lock
	LockAcquire      = domain.LockAcquire
	WorkLogEntry     = domain.WorkLogEntry
	WorkLogCreate    = domain.WorkLogCreate
	Commit           = domain.Commit
	CommitCreate     = domain.CommitCreate
	SizingRequest    = domain.SizingRequest
	RefineRequest    = domain.RefineRequest
)

func get[T any](ctx context.Context, c *Client, endpoint string) (T, error) {
	var resp T
	err := c.Do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func send[T any](ctx context.Context, c *Client, method, endpoint string, body any) (T, error) {
	var resp T
	err := c.Do(ctx, method, endpoint, body, &resp)
	return resp, err
}

func taskPath(id, suffix string) string {
	p := "tasks/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func projectPath(id, suffix string) string {
	p := "projects/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// Health pings the API root.
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "health", nil, nil)
}

// Projects lists all projects with their aggregate counts.
func (c *Client) Projects(ctx context.Context) ([]ProjectDetail, error) {
	return get[[]ProjectDetail](ctx, c, "projects")
}

// Project fetches one project with its aggregate counts.
func (c *Client) Project(ctx context.Context, id string) (ProjectDetail, error) {
	return get[ProjectDetail](ctx, c, projectPath(id, ""))
}

func (c *Client) CreateProject(ctx context.Context, in ProjectCreate) (Project, error) {
	return send[Project](ctx, c, http.MethodPost, "projects", in)
}

func (c *Client) UpdateProject(ctx context.Context, id string, in ProjectUpdate) (Project, error) {
	return send[Project](ctx, c, http.MethodPut, projectPath(id, ""), in)
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, projectPath(id, ""), nil, nil)
}

// ProjectTasks returns the root tasks of a project ordered by position.
func (c *Client) ProjectTasks(ctx context.Context, projectID string) ([]Task, error) {
	return get[[]Task](ctx, c, projectPath(projectID, "tasks"))
}

func (c *Client) CreateTask(ctx context.Context, projectID string, in TaskCreate) (Task, error) {
	return send[Task](ctx, c, http.MethodPost, projectPath(projectID, "tasks"), in)
}

func (c *Client) CreateSubtask(ctx context.Context, parentID string, in TaskCreate) (Task, error) {
	return send[Task](ctx, c, http.MethodPost, taskPath(parentID, "subtasks"), in)
}

func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	return get[Task](ctx, c, taskPath(id, ""))
}

func (c *Client) UpdateTask(ctx context.Context, id string, in TaskUpdate) (Task, error) {
	return send[Task](ctx, c, http.MethodPut, taskPath(id, ""), in)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, taskPath(id, ""), nil, nil)
}

// TaskTree returns the subtree rooted at id.
func (c *Client) TaskTree(ctx context.Context, id string) (TaskTreeNode, error) {
	return get[TaskTreeNode](ctx, c, taskPath(id, "tree"))
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status domain.Status) (Task, error) {
	return send[Task](ctx, c, http.MethodPatch, taskPath(id, "status"), map[string]any{"status": status})
}

func (c *Client) Reorder(ctx context.Context, id string, position int) (Task, error) {
	return send[Task](ctx, c, http.MethodPatch, taskPath(id, "reorder"), map[string]any{"position": position})
}

func (c *Client) FlagRefinement(ctx context.Context, id, notes string) (Task, error) {
	return send[Task](ctx, c, http.MethodPost, taskPath(id, "flag-refinement"), map[string]any{"refinement_notes": notes})
}

func (c *Client) SizeTask(ctx context.Context, id string, in SizingRequest) (Task, error) {
	return send[Task](ctx, c, http.MethodPost, taskPath(id, "size"), in)
}

func (c *Client) RefineTask(ctx context.Context, id string, in RefineRequest) (Task, error) {
	return send[Task](ctx, c, http.MethodPost, taskPath(id, "refine"), in)
}

func (c *Client) WorkLog(ctx context.Context, id string) ([]WorkLogEntry, error) {
	return get[[]WorkLogEntry](ctx, c, taskPath(id, "work-log"))
}

func (c *Client) AddWorkLog(ctx context.Context, id string, in WorkLogCreate) (WorkLogEntry, error) {
	return send[WorkLogEntry](ctx, c, http.MethodPost, taskPath(id, "work-log"), in)
}

func (c *Client) Commits(ctx context.Context, id string) ([]Commit, error) {
	return get[[]Commit](ctx, c, taskPath(id, "commits"))
}

func (c *Client) AddCommit(ctx context.Context, id string, in CommitCreate) (Commit, error) {
	return send[Commit](ctx, c, http.MethodPost, taskPath(id, "commits"), in)
}

// Backlog returns todo tasks that are ready to implement.
func (c *Client) Backlog(ctx context.Context, projectID string) ([]Task, error) {
	return get[[]Task](ctx, c, projectPath(projectID, "backlog"))
}

// InProgress returns doing tasks with their lock details.
func (c *Client) InProgress(ctx context.Context, projectID string) ([]TaskWithLockInfo, error) {
	return get[[]TaskWithLockInfo](ctx, c, projectPath(projectID, "in-progress"))
}

func (c *Client) NeedsRefinement(ctx context.Context, projectID string) ([]Task, error) {
	return get[[]Task](ctx, c, projectPath(projectID, "needs-refinement"))
}

func (c *Client) AcquireLock(ctx context.Context, taskID string, in LockAcquire) (Lock, error) {
	return send[Lock](ctx, c, http.MethodPost, taskPath(taskID, "lock"), in)
}

func (c *Client) HeartbeatLock(ctx context.Context, taskID, callerLabel string) (Lock, error) {
	endpoint := fmt.Sprintf("%s?caller_label=%s", taskPath(taskID, "lock/heartbeat"), url.QueryEscape(callerLabel))
	return send[Lock](ctx, c, http.MethodPatch, endpoint, nil)
}

// ReleaseLock deletes the lock on a task. With force the holder check is skipped.
func (c *Client) ReleaseLock(ctx context.Context, taskID, callerLabel string, force bool) error {
	query := "caller_label=" + url.QueryEscape(callerLabel)
	if force {
		query = "force=true&" + query
	}
	return c.Do(ctx, http.MethodDelete, taskPath(taskID, "lock")+"?"+query, nil, nil)
}
