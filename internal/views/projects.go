package views

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"chorus/internal/domain"
)

func pointsSummary(p domain.ProjectDetail) string {
	return fmt.Sprintf("%d/%d pts", p.PointsCompleted, p.PointsTotal)
}

// ProjectList renders every project with its task and point totals.
func (v *View) ProjectList(ctx context.Context) error {
	res, err := v.tr.Projects(ctx)
	if err != nil {
		return v.failed("projects", err)
	}
	if v.json {
		return v.printJSON(res.Data)
	}
	if len(res.Data) == 0 {
		fmt.Fprintln(v.out, dimStyle.Render("No projects yet. Create one with 'chorus project create'."))
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	tw.AppendHeader(table.Row{"ID", "Name", "Description", "Tasks", "Points"})
	for _, p := range res.Data {
		tw.AppendRow(table.Row{p.ID, p.Name, deref(p.Description), p.TaskCount, pointsSummary(p)})
	}
	tw.Render()
	return nil
}

// ProjectHeader renders the one-line project banner shown above the tree,
// kanban and lock views.
func (v *View) ProjectHeader(ctx context.Context, projectID string) error {
	res, err := v.tr.Project(ctx, projectID)
	if err != nil {
		return v.failed("project", err)
	}
	p := res.Data
	fmt.Fprintf(v.out, "%s  %s\n",
		titleStyle.Render(p.Name),
		dimStyle.Render(fmt.Sprintf("%d tasks · %s", p.TaskCount, pointsSummary(p))),
	)
	return nil
}

// ProjectShow renders one project, or its JSON.
func (v *View) ProjectShow(ctx context.Context, projectID string) error {
	if !v.json {
		return v.ProjectHeader(ctx, projectID)
	}
	res, err := v.tr.Project(ctx, projectID)
	if err != nil {
		return v.failed("project", err)
	}
	return v.printJSON(res.Data)
}
