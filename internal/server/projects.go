package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"chorus/internal/domain"
)

var projectErrors = []int{
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerProjects(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        projectErrors,
	}, func(ctx context.Context, input *struct {
		Body domain.ProjectCreate
	}) (*output[domain.Project], error) {
		p, err := h.e.CreateProject(ctx, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(p), nil
	})

	// The list carries the same aggregates as the detail view.
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.ProjectDetail], error) {
		items, err := h.e.ListProjects(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with task aggregates",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *projectInput) (*output[domain.ProjectDetail], error) {
		p, err := h.e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *projectBodyInput[domain.ProjectUpdate]) (*output[domain.Project], error) {
		p, err := h.e.UpdateProject(ctx, input.ProjectID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project and its tasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        projectErrors,
	}, func(ctx context.Context, input *projectInput) (*struct{}, error) {
		if err := h.e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List root tasks by position",
		Errors:      projectErrors,
	}, func(ctx context.Context, input *projectInput) (*output[[]domain.Task], error) {
		tasks, err := h.e.ProjectTasks(ctx, input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(tasks), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create root task",
		DefaultStatus: http.StatusCreated,
		Errors:        projectErrors,
	}, func(ctx context.Context, input *projectBodyInput[domain.TaskCreate]) (*output[domain.Task], error) {
		t, err := h.e.CreateTask(ctx, input.ProjectID, nil, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return ok(t), nil
	})
}
