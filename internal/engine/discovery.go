package engine

import (
	"context"

	"chorus/internal/domain"
)

// Page bounds a discovery listing.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPage is used when a caller does not ask for one.
var DefaultPage = Page{Limit: 50}

func paginate[T any](items []T, p Page) []T {
	if p.Limit <= 0 {
		p.Limit = DefaultPage.Limit
	}
	if p.Offset >= len(items) {
		return items[:0]
	}
	items = items[max(p.Offset, 0):]
	if len(items) > p.Limit {
		items = items[:p.Limit]
	}
	return items
}

func (e Engine) projectForest(ctx context.Context, projectID string) (*forest, error) {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return nil, orNotFound(err, "project")
	}
	return e.loadForest(ctx, nil, projectID)
}

func identity(t domain.Task) domain.Task { return t }

// Backlog lists todo tasks that are ready to implement.
func (e Engine) Backlog(ctx context.Context, projectID string, p Page) ([]domain.Task, error) {
	f, err := e.projectForest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := []domain.Task{}
	for id, rec := range f.byID {
		if rec.Status != domain.StatusTodo {
			continue
		}
		if t := f.task(id); t.Readiness == domain.ReadinessReady {
			out = append(out, t)
		}
	}
	sortForDiscovery(out, identity)
	return paginate(out, p), nil
}

// InProgress lists doing tasks with the details of any live lock.
func (e Engine) InProgress(ctx context.Context, projectID string, p Page) ([]domain.TaskWithLockInfo, error) {
	f, err := e.projectForest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := []domain.TaskWithLockInfo{}
	for id, rec := range f.byID {
		if rec.Status == domain.StatusDoing {
			out = append(out, f.withLock(id))
		}
	}
	sortForDiscovery(out, func(t domain.TaskWithLockInfo) domain.Task { return t.Task })
	return paginate(out, p), nil
}

// LowConfidence is the highest sizing confidence that still asks for
// refinement.
const LowConfidence = 2

// NeedsRefinement lists flagged tasks and tasks sized with low confidence.
func (e Engine) NeedsRefinement(ctx context.Context, projectID string, p Page) ([]domain.Task, error) {
	f, err := e.projectForest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := []domain.Task{}
	for id, rec := range f.byID {
		if rec.NeedsRefinement || (rec.SizingConfidence != nil && *rec.SizingConfidence <= LowConfidence) {
			out = append(out, f.task(id))
		}
	}
	sortForDiscovery(out, identity)
	return paginate(out, p), nil
}
