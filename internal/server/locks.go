package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"chorus/internal/domain"
	"chorus/internal/engine"
)

var lockErrors = []int{
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerLocks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "acquire-lock",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/lock",
		Summary:       "Lock task for one purpose",
		DefaultStatus: http.StatusCreated,
		Errors:        lockErrors,
	}, func(ctx context.Context, input *taskBodyInput[domain.LockAcquire]) (*output[domain.Lock], error) {
		l, err := h.e.AcquireLock(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "heartbeat-lock",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/lock/heartbeat",
		Summary:     "Extend a held lock",
		Errors:      lockErrors,
	}, func(ctx context.Context, input *struct {
		TaskID      string `path:"task_id"`
		CallerLabel string `query:"caller_label" required:"true"`
	}) (*output[domain.Lock], error) {
		l, err := h.e.HeartbeatLock(ctx, input.TaskID, input.CallerLabel)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "release-lock",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}/lock",
		Summary:       "Release lock; force skips the holder check",
		DefaultStatus: http.StatusNoContent,
		Errors:        lockErrors,
	}, func(ctx context.Context, input *lockCallerInput) (*struct{}, error) {
		if err := h.e.ReleaseLock(ctx, input.TaskID, input.CallerLabel, input.Force); err != nil {
			return nil, h.handleError(err)
		}
		h.log.Info("lock released", "task", input.TaskID, "caller", input.CallerLabel, "force", input.Force)
		return nil, nil
	})
}

func registerDiscovery(api huma.API, h handlers) {
	page := func(in *pageInput) engine.Page {
		return engine.Page{Limit: in.Limit, Offset: in.Offset}
	}

	huma.Register(api, huma.Operation{
		OperationID: "backlog",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/backlog",
		Summary:     "Ready todo tasks, smallest first",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *pageInput) (*output[[]domain.Task], error) {
		tasks, err := h.e.Backlog(ctx, input.ProjectID, page(input))
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(tasks), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "in-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/in-progress",
		Summary:     "Doing tasks with live lock details",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *pageInput) (*output[[]domain.TaskWithLockInfo], error) {
		tasks, err := h.e.InProgress(ctx, input.ProjectID, page(input))
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(tasks), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "needs-refinement",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/needs-refinement",
		Summary:     "Flagged or low-confidence tasks",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *pageInput) (*output[[]domain.Task], error) {
		tasks, err := h.e.NeedsRefinement(ctx, input.ProjectID, page(input))
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(tasks), nil
	})
}
