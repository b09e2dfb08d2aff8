package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"chorus/internal/domain"
	"chorus/internal/present"
)

// Tab selects the section of the detail panel.
type Tab string

const (
	TabDetails Tab = "details"
	TabWorkLog Tab = "worklog"
	TabCommits Tab = "commits"
)

func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case "", TabDetails:
		return TabDetails, nil
	case TabWorkLog, TabCommits:
		return Tab(s), nil
	}
	return "", fmt.Errorf("unknown tab %q (want details, worklog or commits)", s)
}

type detailJSON struct {
	Task    domain.Task `json:"task"`
	Actions []string    `json:"actions"`
}

// Detail renders one task and the selected tab.
func (v *View) Detail(ctx context.Context, taskID string, tab Tab) error {
	switch tab {
	case TabWorkLog:
		return v.workLog(ctx, taskID)
	case TabCommits:
		return v.commits(ctx, taskID)
	}
	res, err := v.tr.Task(ctx, taskID)
	if err != nil {
		return v.failed("task", err)
	}
	t := res.Data
	actions := present.Actions(t)
	if v.json {
		out := detailJSON{Task: t, Actions: []string{}}
		for _, a := range actions {
			out.Actions = append(out.Actions, a.Label)
		}
		return v.printJSON(out)
	}

	fmt.Fprintln(v.out, titleStyle.Render(t.Name))
	fmt.Fprintln(v.out, strings.Join([]string{
		present.StatusBadge(t.Status).Render(),
		present.ReadinessBadge(t.Readiness).Render(),
		present.TypeBadge(t.TaskType).Render(),
	}, "  "))

	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	tw.AppendRow(table.Row{"ID", t.ID})
	tw.AppendRow(table.Row{"Description", orPlaceholder(t.Description, "(no description)")})
	tw.AppendRow(table.Row{"Context", orPlaceholder(t.Context, "(no context)")})
	tw.AppendRow(table.Row{"Type", present.TypeBadge(t.TaskType).Label})
	tw.AppendRow(table.Row{"Points", present.Points(t)})
	tw.AppendRow(table.Row{"Subtasks", t.ChildrenCount})
	if t.IsLocked {
		tw.AppendRow(table.Row{"Lock", "🔒 locked"})
	}
	tw.Render()

	if len(actions) > 0 {
		labels := make([]string, len(actions))
		for i, a := range actions {
			labels[i] = a.Label
		}
		fmt.Fprintln(v.out, "Actions: "+strings.Join(labels, "  "))
	}
	return nil
}

func orPlaceholder(s *string, placeholder string) string {
	if s == nil || *s == "" {
		return dimStyle.Render(placeholder)
	}
	return *s
}

func (v *View) workLog(ctx context.Context, taskID string) error {
	res, err := v.tr.WorkLog(ctx, taskID)
	if err != nil {
		return v.failed("work log", err)
	}
	if v.json {
		return v.printJSON(res.Data)
	}
	if len(res.Data) == 0 {
		fmt.Fprintln(v.out, dimStyle.Render("No work log entries."))
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	tw.AppendHeader(table.Row{"When", "Operation", "Author", "Content"})
	for _, e := range res.Data {
		tw.AppendRow(table.Row{e.CreatedAt, present.OperationLabel(e.Operation), deref(e.Author), e.Content})
	}
	tw.Render()
	return nil
}

func (v *View) commits(ctx context.Context, taskID string) error {
	res, err := v.tr.Commits(ctx, taskID)
	if err != nil {
		return v.failed("commits", err)
	}
	if v.json {
		return v.printJSON(res.Data)
	}
	if len(res.Data) == 0 {
		fmt.Fprintln(v.out, dimStyle.Render("No commits."))
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	tw.AppendHeader(table.Row{"Hash", "Message", "Author", "Committed"})
	for _, c := range res.Data {
		msg := deref(c.Message)
		if msg == "" {
			msg = "(no message)"
		}
		tw.AppendRow(table.Row{c.ShortHash(), msg, deref(c.Author), c.CommittedAt})
	}
	tw.Render()
	return nil
}

// ChangeStatus applies a transition offered by the detail panel. Moves the
// panel would not offer are refused before reaching the server.
func (v *View) ChangeStatus(ctx context.Context, projectID string, task domain.Task, to domain.Status) (domain.Task, error) {
	if !domain.CanTransition(task.Status, to) {
		return task, fmt.Errorf("cannot move %s from %s to %s", task.ID, task.Status, to)
	}
	return v.tr.UpdateStatus(ctx, projectID, task.ID, to)
}

// Flag marks a task as needing refinement when the panel offers it.
func (v *View) Flag(ctx context.Context, projectID string, task domain.Task, notes string) (domain.Task, error) {
	if !present.CanFlag(task) {
		return task, fmt.Errorf("task %s already needs refinement", task.ID)
	}
	if notes == "" {
		notes = present.FlagNotes
	}
	return v.tr.FlagRefinement(ctx, projectID, task.ID, notes)
}
