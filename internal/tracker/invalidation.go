package tracker

import "chorus/internal/query"

// Mutation names a write the client can perform.
type Mutation string

const (
	CreateProject  Mutation = "create_project"
	UpdateProject  Mutation = "update_project"
	DeleteProject  Mutation = "delete_project"
	CreateTask     Mutation = "create_task"
	CreateSubtask  Mutation = "create_subtask"
	UpdateTask     Mutation = "update_task"
	DeleteTask     Mutation = "delete_task"
	UpdateStatus   Mutation = "update_status"
	Reorder        Mutation = "reorder"
	FlagRefinement Mutation = "flag_refinement"
	ForceRelease   Mutation = "force_release"
	SizeTask       Mutation = "size_task"
	RefineTask     Mutation = "refine_task"
	AcquireLock    Mutation = "acquire_lock"
	HeartbeatLock  Mutation = "heartbeat_lock"
	ReleaseLock    Mutation = "release_lock"
	AddWorkLog     Mutation = "add_work_log"
	AddCommit      Mutation = "add_commit"
)

// Target identifies the entities a mutation touched.
type Target struct {
	ProjectID string
	TaskID    string
	ParentID  string
}

var invalidationTable = map[Mutation]func(Target) []query.Key{
	CreateProject: func(t Target) []query.Key {
		return []query.Key{ProjectsKey()}
	},
	UpdateProject: func(t Target) []query.Key {
		return []query.Key{ProjectsKey(), ProjectKey(t.ProjectID)}
	},
	DeleteProject: func(t Target) []query.Key {
		return []query.Key{ProjectsKey(), ProjectKey(t.ProjectID)}
	},
	CreateTask: func(t Target) []query.Key {
		return []query.Key{ProjectTasksKey(t.ProjectID), ProjectKey(t.ProjectID)}
	},
	CreateSubtask: func(t Target) []query.Key {
		return []query.Key{
			ProjectTasksKey(t.ProjectID),
			TaskTreeKey(t.ParentID),
			TaskKey(t.ParentID),
			ProjectKey(t.ProjectID),
		}
	},
	UpdateTask: func(t Target) []query.Key {
		return []query.Key{TaskKey(t.TaskID), ProjectTasksKey(t.ProjectID)}
	},
	DeleteTask: func(t Target) []query.Key {
		return []query.Key{ProjectTasksKey(t.ProjectID), ProjectKey(t.ProjectID)}
	},
	UpdateStatus: func(t Target) []query.Key {
		return []query.Key{
			TaskKey(t.TaskID),
			ProjectTasksKey(t.ProjectID),
			ProjectKey(t.ProjectID),
			InProgressKey(t.ProjectID),
			BacklogKey(t.ProjectID),
		}
	},
	Reorder: func(t Target) []query.Key {
		return []query.Key{ProjectTasksKey(t.ProjectID)}
	},
	FlagRefinement: func(t Target) []query.Key {
		return []query.Key{TaskKey(t.TaskID), ProjectTasksKey(t.ProjectID)}
	},
	ForceRelease: func(t Target) []query.Key {
		return []query.Key{InProgressKey(t.ProjectID)}
	},
	SizeTask: func(t Target) []query.Key {
		return []query.Key{
			TaskKey(t.TaskID),
			ProjectTasksKey(t.ProjectID),
			ProjectKey(t.ProjectID),
			BacklogKey(t.ProjectID),
			NeedsRefinementKey(t.ProjectID),
		}
	},
	RefineTask: func(t Target) []query.Key {
		return []query.Key{
			TaskKey(t.TaskID),
			ProjectTasksKey(t.ProjectID),
			BacklogKey(t.ProjectID),
			NeedsRefinementKey(t.ProjectID),
		}
	},
	AcquireLock: func(t Target) []query.Key {
		return []query.Key{TaskKey(t.TaskID), ProjectTasksKey(t.ProjectID), InProgressKey(t.ProjectID)}
	},
	HeartbeatLock: func(t Target) []query.Key {
		return []query.Key{InProgressKey(t.ProjectID)}
	},
	ReleaseLock: func(t Target) []query.Key {
		return []query.Key{TaskKey(t.TaskID), ProjectTasksKey(t.ProjectID), InProgressKey(t.ProjectID)}
	},
	AddWorkLog: func(t Target) []query.Key {
		return []query.Key{WorkLogKey(t.TaskID)}
	},
	AddCommit: func(t Target) []query.Key {
		return []query.Key{CommitsKey(t.TaskID)}
	},
}

// Invalidations returns the keys a successful mutation marks stale.
func Invalidations(m Mutation, t Target) []query.Key {
	fn, ok := invalidationTable[m]
	if !ok {
		return nil
	}
	return fn(t)
}
