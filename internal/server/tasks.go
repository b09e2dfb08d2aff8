package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"chorus/internal/domain"
)

var taskErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Create subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.TaskCreate]) (*output[domain.Task], error) {
		t, err := h.e.CreateSubtask(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskInput) (*output[domain.Task], error) {
		t, err := h.e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.TaskUpdate]) (*output[domain.Task], error) {
		t, err := h.e.UpdateTask(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task and its subtree",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskInput) (*struct{}, error) {
		if err := h.e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-tree",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/tree",
		Summary:     "Get task subtree",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskInput) (*output[domain.TaskTreeNode], error) {
		tree, err := h.e.TaskTree(ctx, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(tree), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Change task status",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[StatusRequest]) (*output[domain.Task], error) {
		t, err := h.e.UpdateStatus(ctx, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/reorder",
		Summary:     "Move task among its siblings",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[ReorderRequest]) (*output[domain.Task], error) {
		t, err := h.e.Reorder(ctx, input.TaskID, input.Body.Position)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})
}

func registerAtomic(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "size-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/size",
		Summary:     "Record a sizing",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.SizingRequest]) (*output[domain.Task], error) {
		t, err := h.e.SizeTask(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refine-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/refine",
		Summary:     "Refine task and clear its flag",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.RefineRequest]) (*output[domain.Task], error) {
		t, err := h.e.RefineTask(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "flag-refinement",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/flag-refinement",
		Summary:     "Flag task for refinement",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[FlagRefinementRequest]) (*output[domain.Task], error) {
		t, err := h.e.FlagRefinement(ctx, input.TaskID, input.Body.RefinementNotes)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-log",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/work-log",
		Summary:     "List work log entries",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskInput) (*output[[]domain.WorkLogEntry], error) {
		entries, err := h.e.WorkLog(ctx, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-work-log",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/work-log",
		Summary:       "Append work log entry",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.WorkLogCreate]) (*output[domain.WorkLogEntry], error) {
		entry, err := h.e.AddWorkLog(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commits",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/commits",
		Summary:     "List linked commits",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskInput) (*output[[]domain.Commit], error) {
		commits, err := h.e.Commits(ctx, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(commits), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-commit",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/commits",
		Summary:       "Link commit",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.CommitCreate]) (*output[domain.Commit], error) {
		c, err := h.e.AddCommit(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(c), nil
	})
}
