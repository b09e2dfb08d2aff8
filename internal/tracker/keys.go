package tracker

import "chorus/internal/query"

// Cache keys. Project-scoped views nest under the project key, task-scoped
// views under the task key, so invalidating a parent key covers them.

func ProjectsKey() query.Key { return query.K("projects") }

func ProjectKey(projectID string) query.Key { return query.K("projects", projectID) }

func ProjectTasksKey(projectID string) query.Key {
	return query.K("projects", projectID, "tasks")
}

func BacklogKey(projectID string) query.Key {
	return query.K("projects", projectID, "backlog")
}

func InProgressKey(projectID string) query.Key {
	return query.K("projects", projectID, "in-progress")
}

func NeedsRefinementKey(projectID string) query.Key {
	return query.K("projects", projectID, "needs-refinement")
}

func TaskKey(taskID string) query.Key { return query.K("tasks", taskID) }

func TaskTreeKey(taskID string) query.Key { return query.K("tasks", taskID, "tree") }

func WorkLogKey(taskID string) query.Key { return query.K("tasks", taskID, "work-log") }

func CommitsKey(taskID string) query.Key { return query.K("tasks", taskID, "commits") }
