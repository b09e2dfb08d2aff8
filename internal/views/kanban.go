package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"chorus/internal/domain"
	"chorus/internal/present"
)

// Column is one kanban lane.
type Column struct {
	Status domain.Status  `json:"status"`
	Label  string         `json:"label"`
	Cards  []present.Card `json:"-"`
}

var columnLabels = map[domain.Status]string{
	domain.StatusTodo:   "To Do",
	domain.StatusDoing:  "Doing",
	domain.StatusDone:   "Done",
	domain.StatusWontDo: "Won't Do",
}

// BuildBoard groups tasks into the four fixed columns, keeping list order
// within each. A task also present in the in-progress view is shown with
// its lock information.
func BuildBoard(tasks []domain.Task, inProgress []domain.TaskWithLockInfo) []Column {
	locks := make(map[string]domain.TaskWithLockInfo, len(inProgress))
	for _, t := range inProgress {
		locks[t.ID] = t
	}
	cols := make([]Column, len(domain.Statuses))
	index := make(map[domain.Status]int, len(domain.Statuses))
	for i, s := range domain.Statuses {
		cols[i] = Column{Status: s, Label: columnLabels[s]}
		index[s] = i
	}
	for _, t := range tasks {
		i, ok := index[t.Status]
		if !ok {
			continue
		}
		card := present.TaskCard(t)
		if lt, ok := locks[t.ID]; ok {
			card = present.LockCard(lt)
		}
		cols[i].Cards = append(cols[i].Cards, card)
	}
	return cols
}

func cardText(c present.Card) string {
	parts := []string{c.Task.Name, present.ReadinessBadge(c.Task.Readiness).Render()}
	if pts := present.ShortPoints(c.Task); pts != "" {
		parts = append(parts, pts)
	}
	if m := c.LockMarker(); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, " ")
}

type boardJSON struct {
	Status domain.Status `json:"status"`
	Label  string        `json:"label"`
	Tasks  []domain.Task `json:"tasks"`
}

// Kanban renders the project's tasks by status. The in-progress view only
// decorates cards; when it fails the board still renders.
func (v *View) Kanban(ctx context.Context, projectID string) error {
	tasks, err := v.tr.ProjectTasks(ctx, projectID)
	if err != nil {
		return v.failed("tasks", err)
	}
	inProgress, _ := v.tr.InProgress(ctx, projectID)
	cols := BuildBoard(tasks.Data, inProgress.Data)

	if v.json {
		out := make([]boardJSON, len(cols))
		for i, col := range cols {
			out[i] = boardJSON{Status: col.Status, Label: col.Label, Tasks: []domain.Task{}}
			for _, c := range col.Cards {
				out[i].Tasks = append(out[i].Tasks, c.Task)
			}
		}
		return v.printJSON(out)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(v.out)
	header := table.Row{}
	depth := 0
	for _, col := range cols {
		header = append(header, fmt.Sprintf("%s (%d)", col.Label, len(col.Cards)))
		if len(col.Cards) > depth {
			depth = len(col.Cards)
		}
	}
	tw.AppendHeader(header)
	if depth == 0 {
		depth = 1
	}
	for i := 0; i < depth; i++ {
		row := table.Row{}
		for _, col := range cols {
			switch {
			case i < len(col.Cards):
				row = append(row, cardText(col.Cards[i]))
			case i == 0:
				row = append(row, dimStyle.Render("No tasks"))
			default:
				row = append(row, "")
			}
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}
