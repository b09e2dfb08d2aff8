package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"chorus/internal/domain"
	"chorus/internal/repo"
)

func (e Engine) CreateProject(ctx context.Context, in domain.ProjectCreate) (domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, invalid("name is required")
	}
	now := repo.Timestamp(e.now())
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, nil, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns every project, oldest first, with its aggregates.
func (e Engine) ListProjects(ctx context.Context) ([]domain.ProjectDetail, error) {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := e.Repo.ProjectStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProjectDetail, 0, len(projects))
	for _, p := range projects {
		out = append(out, detail(p, stats[p.ID]))
	}
	return out, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.ProjectDetail, error) {
	p, err := e.Repo.GetProject(ctx, nil, id)
	if err != nil {
		return domain.ProjectDetail{}, orNotFound(err, "project")
	}
	stats, err := e.Repo.ProjectStats(ctx)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	return detail(p, stats[p.ID]), nil
}

func detail(p domain.Project, s repo.ProjectStats) domain.ProjectDetail {
	return domain.ProjectDetail{
		Project:         p,
		TaskCount:       s.TaskCount,
		PointsTotal:     s.PointsTotal,
		PointsCompleted: s.PointsCompleted,
	}
}

// UpdateProject applies the fields present in in.
func (e Engine) UpdateProject(ctx context.Context, id string, in domain.ProjectUpdate) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, id)
	if err != nil {
		return domain.Project{}, orNotFound(err, "project")
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.Project{}, invalid("name must not be empty")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	p.UpdatedAt = repo.Timestamp(e.now())
	if err := e.Repo.UpdateProject(ctx, nil, p); err != nil {
		return domain.Project{}, orNotFound(err, "project")
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, id string) error {
	return orNotFound(e.Repo.DeleteProject(ctx, id), "project")
}
