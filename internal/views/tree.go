package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"chorus/internal/hierarchy"
	"chorus/internal/present"
)

// TreeOptions picks which rows to open before rendering.
type TreeOptions struct {
	// Expand lists task ids whose rows are opened wherever they appear.
	Expand []string
	// Depth opens every row above this depth. Zero leaves rows collapsed.
	Depth int
}

func (o TreeOptions) picks(r hierarchy.Row) bool {
	if r.Depth < o.Depth {
		return true
	}
	for _, id := range o.Expand {
		if r.Task.ID == id {
			return true
		}
	}
	return false
}

func disclosure(r hierarchy.Row) string {
	switch {
	case !r.HasChildren:
		return " "
	case r.Expanded:
		return "▼"
	default:
		return "▶"
	}
}

// Tree renders the project's root tasks as an outline. Expansion state lives
// in tree so callers can keep it across renders.
func (v *View) Tree(ctx context.Context, projectID string, tree *hierarchy.Tree, opts TreeOptions) error {
	res, err := v.tr.ProjectTasks(ctx, projectID)
	if err != nil {
		return v.failed("tasks", err)
	}
	rows := tree.ExpandWhere(ctx, v.tr, res.Data, opts.picks)
	if v.json {
		return v.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(v.out, dimStyle.Render("No tasks yet."))
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	tw.AppendHeader(table.Row{"Task", "Readiness", "Points", "Sub", "Lock", "ID"})
	for _, r := range rows {
		name := strings.Repeat("  ", r.Depth) + disclosure(r) + " " + present.StatusDot(r.Task.Status) + " " + r.Task.Name
		lock := ""
		if r.Task.IsLocked {
			lock = "🔒"
		}
		tw.AppendRow(table.Row{
			name,
			present.ReadinessBadge(r.Task.Readiness).Render(),
			present.ShortPoints(r.Task),
			present.ChildrenTag(r.Task),
			lock,
			r.Task.ID,
		})
		switch {
		case r.Err != nil:
			tw.AppendRow(table.Row{strings.Repeat("  ", r.Depth+1) + errorStyle.Render("Failed to load subtasks: "+r.Err.Error())})
		case r.Loading:
			tw.AppendRow(table.Row{strings.Repeat("  ", r.Depth+1) + dimStyle.Render("Loading...")})
		}
	}
	tw.Render()
	return nil
}
