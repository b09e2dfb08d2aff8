package tracker

import (
	"context"
	"time"

	"chorus/internal/domain"
	"chorus/internal/query"
)

// DefaultCallerLabel identifies this client when it releases locks.
const DefaultCallerLabel = "dashboard"

// LockPollInterval is how often the lock monitor refreshes.
const LockPollInterval = 10 * time.Second

// API is the subset of the Chorus HTTP API the tracker uses.
type API interface {
	Projects(ctx context.Context) ([]domain.ProjectDetail, error)
	Project(ctx context.Context, id string) (domain.ProjectDetail, error)
	CreateProject(ctx context.Context, in domain.ProjectCreate) (domain.Project, error)
	UpdateProject(ctx context.Context, id string, in domain.ProjectUpdate) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error

	ProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, projectID string, in domain.TaskCreate) (domain.Task, error)
	CreateSubtask(ctx context.Context, parentID string, in domain.TaskCreate) (domain.Task, error)
	Task(ctx context.Context, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, in domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	TaskTree(ctx context.Context, id string) (domain.TaskTreeNode, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error)
	Reorder(ctx context.Context, id string, position int) (domain.Task, error)
	FlagRefinement(ctx context.Context, id, notes string) (domain.Task, error)
	SizeTask(ctx context.Context, id string, in domain.SizingRequest) (domain.Task, error)
	RefineTask(ctx context.Context, id string, in domain.RefineRequest) (domain.Task, error)

	WorkLog(ctx context.Context, id string) ([]domain.WorkLogEntry, error)
	AddWorkLog(ctx context.Context, id string, in domain.WorkLogCreate) (domain.WorkLogEntry, error)
	Commits(ctx context.Context, id string) ([]domain.Commit, error)
	AddCommit(ctx context.Context, id string, in domain.CommitCreate) (domain.Commit, error)

	Backlog(ctx context.Context, projectID string) ([]domain.Task, error)
	InProgress(ctx context.Context, projectID string) ([]domain.TaskWithLockInfo, error)
	NeedsRefinement(ctx context.Context, projectID string) ([]domain.Task, error)

	AcquireLock(ctx context.Context, taskID string, in domain.LockAcquire) (domain.Lock, error)
	HeartbeatLock(ctx context.Context, taskID, callerLabel string) (domain.Lock, error)
	ReleaseLock(ctx context.Context, taskID, callerLabel string, force bool) error
}

// Tracker binds typed queries and mutations to cache keys and the
// invalidation table.
type Tracker struct {
	api         API
	cache       *query.Cache
	callerLabel string
	staleTime   time.Duration
}

type Option func(*Tracker)

// WithCallerLabel sets the label sent when releasing locks.
func WithCallerLabel(label string) Option {
	return func(t *Tracker) {
		if label != "" {
			t.callerLabel = label
		}
	}
}

// WithStaleTime bounds how long cached results are served without refetching.
func WithStaleTime(d time.Duration) Option {
	return func(t *Tracker) { t.staleTime = d }
}

func New(api API, cache *query.Cache, opts ...Option) *Tracker {
	t := &Tracker{api: api, cache: cache, callerLabel: DefaultCallerLabel}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Cache() *query.Cache { return t.cache }

func (t *Tracker) CallerLabel() string { return t.callerLabel }

func (t *Tracker) options() query.Options {
	return query.Options{StaleTime: t.staleTime}
}

func get[T any](ctx context.Context, t *Tracker, key query.Key, fetch query.Fetcher[T]) (query.Result[T], error) {
	return query.Query(ctx, t.cache, key, fetch, t.options())
}

func mutate[T any](ctx context.Context, t *Tracker, m Mutation, target Target, fn func(ctx context.Context) (T, error)) (T, error) {
	return query.Mutate(ctx, t.cache, fn, Invalidations(m, target)...)
}

func noResult(fn func(ctx context.Context) error) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}
}

// --- queries ---

func (t *Tracker) Projects(ctx context.Context) (query.Result[[]domain.ProjectDetail], error) {
	return get(ctx, t, ProjectsKey(), t.api.Projects)
}

func (t *Tracker) Project(ctx context.Context, id string) (query.Result[domain.ProjectDetail], error) {
	return get(ctx, t, ProjectKey(id), func(ctx context.Context) (domain.ProjectDetail, error) {
		return t.api.Project(ctx, id)
	})
}

// ProjectTasks returns the project's root tasks in server order.
func (t *Tracker) ProjectTasks(ctx context.Context, projectID string) (query.Result[[]domain.Task], error) {
	return get(ctx, t, ProjectTasksKey(projectID), func(ctx context.Context) ([]domain.Task, error) {
		return t.api.ProjectTasks(ctx, projectID)
	})
}

func (t *Tracker) Task(ctx context.Context, id string) (query.Result[domain.Task], error) {
	return get(ctx, t, TaskKey(id), func(ctx context.Context) (domain.Task, error) {
		return t.api.Task(ctx, id)
	})
}

// TaskTree fetches the subtree rooted at id. With enabled false nothing is
// fetched and any cached tree is returned as is.
func (t *Tracker) TaskTree(ctx context.Context, id string, enabled bool) (query.Result[domain.TaskTreeNode], error) {
	opts := t.options()
	opts.Disabled = !enabled
	return query.Query(ctx, t.cache, TaskTreeKey(id), func(ctx context.Context) (domain.TaskTreeNode, error) {
		return t.api.TaskTree(ctx, id)
	}, opts)
}

func (t *Tracker) WorkLog(ctx context.Context, taskID string) (query.Result[[]domain.WorkLogEntry], error) {
	return get(ctx, t, WorkLogKey(taskID), func(ctx context.Context) ([]domain.WorkLogEntry, error) {
		return t.api.WorkLog(ctx, taskID)
	})
}

func (t *Tracker) Commits(ctx context.Context, taskID string) (query.Result[[]domain.Commit], error) {
	return get(ctx, t, CommitsKey(taskID), func(ctx context.Context) ([]domain.Commit, error) {
		return t.api.Commits(ctx, taskID)
	})
}

func (t *Tracker) Backlog(ctx context.Context, projectID string) (query.Result[[]domain.Task], error) {
	return get(ctx, t, BacklogKey(projectID), func(ctx context.Context) ([]domain.Task, error) {
		return t.api.Backlog(ctx, projectID)
	})
}

func (t *Tracker) InProgress(ctx context.Context, projectID string) (query.Result[[]domain.TaskWithLockInfo], error) {
	return get(ctx, t, InProgressKey(projectID), t.inProgressFetcher(projectID))
}

func (t *Tracker) NeedsRefinement(ctx context.Context, projectID string) (query.Result[[]domain.Task], error) {
	return get(ctx, t, NeedsRefinementKey(projectID), func(ctx context.Context) ([]domain.Task, error) {
		return t.api.NeedsRefinement(ctx, projectID)
	})
}

func (t *Tracker) inProgressFetcher(projectID string) query.Fetcher[[]domain.TaskWithLockInfo] {
	return func(ctx context.Context) ([]domain.TaskWithLockInfo, error) {
		return t.api.InProgress(ctx, projectID)
	}
}

// WatchInProgress mounts the in-progress view and polls it every interval.
// A zero interval uses LockPollInterval. Close the observer to stop polling.
func (t *Tracker) WatchInProgress(projectID string, interval time.Duration) *query.Observer[[]domain.TaskWithLockInfo] {
	if interval <= 0 {
		interval = LockPollInterval
	}
	opts := t.options()
	opts.RefetchInterval = interval
	return query.Observe(t.cache, InProgressKey(projectID), t.inProgressFetcher(projectID), opts)
}

// --- mutations ---

func (t *Tracker) CreateProject(ctx context.Context, in domain.ProjectCreate) (domain.Project, error) {
	return mutate(ctx, t, CreateProject, Target{}, func(ctx context.Context) (domain.Project, error) {
		return t.api.CreateProject(ctx, in)
	})
}

func (t *Tracker) UpdateProject(ctx context.Context, id string, in domain.ProjectUpdate) (domain.Project, error) {
	return mutate(ctx, t, UpdateProject, Target{ProjectID: id}, func(ctx context.Context) (domain.Project, error) {
		return t.api.UpdateProject(ctx, id, in)
	})
}

func (t *Tracker) DeleteProject(ctx context.Context, id string) error {
	_, err := mutate(ctx, t, DeleteProject, Target{ProjectID: id}, noResult(func(ctx context.Context) error {
		return t.api.DeleteProject(ctx, id)
	}))
	return err
}

func (t *Tracker) CreateTask(ctx context.Context, projectID string, in domain.TaskCreate) (domain.Task, error) {
	return mutate(ctx, t, CreateTask, Target{ProjectID: projectID}, func(ctx context.Context) (domain.Task, error) {
		return t.api.CreateTask(ctx, projectID, in)
	})
}

func (t *Tracker) CreateSubtask(ctx context.Context, projectID, parentID string, in domain.TaskCreate) (domain.Task, error) {
	target := Target{ProjectID: projectID, ParentID: parentID}
	return mutate(ctx, t, CreateSubtask, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.CreateSubtask(ctx, parentID, in)
	})
}

func (t *Tracker) UpdateTask(ctx context.Context, projectID, taskID string, in domain.TaskUpdate) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, UpdateTask, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.UpdateTask(ctx, taskID, in)
	})
}

func (t *Tracker) DeleteTask(ctx context.Context, projectID, taskID string) error {
	target := Target{ProjectID: projectID, TaskID: taskID}
	_, err := mutate(ctx, t, DeleteTask, target, noResult(func(ctx context.Context) error {
		return t.api.DeleteTask(ctx, taskID)
	}))
	return err
}

func (t *Tracker) UpdateStatus(ctx context.Context, projectID, taskID string, status domain.Status) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, UpdateStatus, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.UpdateStatus(ctx, taskID, status)
	})
}

func (t *Tracker) Reorder(ctx context.Context, projectID, taskID string, position int) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, Reorder, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.Reorder(ctx, taskID, position)
	})
}

func (t *Tracker) FlagRefinement(ctx context.Context, projectID, taskID, notes string) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, FlagRefinement, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.FlagRefinement(ctx, taskID, notes)
	})
}

func (t *Tracker) SizeTask(ctx context.Context, projectID, taskID string, in domain.SizingRequest) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, SizeTask, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.SizeTask(ctx, taskID, in)
	})
}

func (t *Tracker) RefineTask(ctx context.Context, projectID, taskID string, in domain.RefineRequest) (domain.Task, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, RefineTask, target, func(ctx context.Context) (domain.Task, error) {
		return t.api.RefineTask(ctx, taskID, in)
	})
}

// ForceRelease removes another caller's lock.
func (t *Tracker) ForceRelease(ctx context.Context, projectID, taskID string) error {
	target := Target{ProjectID: projectID, TaskID: taskID}
	_, err := mutate(ctx, t, ForceRelease, target, noResult(func(ctx context.Context) error {
		return t.api.ReleaseLock(ctx, taskID, t.callerLabel, true)
	}))
	return err
}

func (t *Tracker) AcquireLock(ctx context.Context, projectID, taskID string, purpose domain.LockPurpose) (domain.Lock, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, AcquireLock, target, func(ctx context.Context) (domain.Lock, error) {
		return t.api.AcquireLock(ctx, taskID, domain.LockAcquire{CallerLabel: t.callerLabel, LockPurpose: purpose})
	})
}

func (t *Tracker) HeartbeatLock(ctx context.Context, projectID, taskID string) (domain.Lock, error) {
	target := Target{ProjectID: projectID, TaskID: taskID}
	return mutate(ctx, t, HeartbeatLock, target, func(ctx context.Context) (domain.Lock, error) {
		return t.api.HeartbeatLock(ctx, taskID, t.callerLabel)
	})
}

func (t *Tracker) ReleaseLock(ctx context.Context, projectID, taskID string) error {
	target := Target{ProjectID: projectID, TaskID: taskID}
	_, err := mutate(ctx, t, ReleaseLock, target, noResult(func(ctx context.Context) error {
		return t.api.ReleaseLock(ctx, taskID, t.callerLabel, false)
	}))
	return err
}

func (t *Tracker) AddWorkLog(ctx context.Context, taskID string, in domain.WorkLogCreate) (domain.WorkLogEntry, error) {
	return mutate(ctx, t, AddWorkLog, Target{TaskID: taskID}, func(ctx context.Context) (domain.WorkLogEntry, error) {
		return t.api.AddWorkLog(ctx, taskID, in)
	})
}

func (t *Tracker) AddCommit(ctx context.Context, taskID string, in domain.CommitCreate) (domain.Commit, error) {
	return mutate(ctx, t, AddCommit, Target{TaskID: taskID}, func(ctx context.Context) (domain.Commit, error) {
		return t.api.AddCommit(ctx, taskID, in)
	})
}
