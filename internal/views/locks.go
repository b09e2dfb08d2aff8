package views

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"chorus/internal/domain"
	"chorus/internal/present"
	"chorus/internal/query"
	"chorus/internal/tracker"
)

const (
	noLocks     = "No active locks."
	refreshNote = "Auto-refreshes every %s."
)

// LockRow is one line of the lock monitor.
type LockRow struct {
	TaskID        string `json:"task_id"`
	Task          string `json:"task"`
	Caller        string `json:"caller"`
	Purpose       string `json:"purpose"`
	TimeRemaining string `json:"time_remaining"`
}

// LockRows keeps in-progress tasks that name a lock holder and computes
// their countdowns against now.
func LockRows(tasks []domain.TaskWithLockInfo, now time.Time) []LockRow {
	var rows []LockRow
	for _, t := range tasks {
		if deref(t.LockCallerLabel) == "" {
			continue
		}
		rows = append(rows, LockRow{
			TaskID:        t.ID,
			Task:          t.Name,
			Caller:        *t.LockCallerLabel,
			Purpose:       deref(t.LockPurpose),
			TimeRemaining: present.TimeRemaining(t.LockExpiresAt, now),
		})
	}
	return rows
}

// Locks renders the lock monitor once.
func (v *View) Locks(ctx context.Context, projectID string) error {
	res, err := v.tr.InProgress(ctx, projectID)
	if err != nil {
		return v.failed("locks", err)
	}
	return v.renderLocks(res.Data, 0)
}

func (v *View) renderLocks(tasks []domain.TaskWithLockInfo, interval time.Duration) error {
	rows := LockRows(tasks, v.now())
	if v.json {
		if rows == nil {
			rows = []LockRow{}
		}
		return v.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(v.out, noLocks)
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(v.out)
		tw.AppendHeader(table.Row{"Task", "Caller", "Purpose", "Time remaining", "ID"})
		for _, r := range rows {
			tw.AppendRow(table.Row{r.Task, r.Caller, r.Purpose, r.TimeRemaining, r.TaskID})
		}
		tw.Render()
	}
	if interval > 0 {
		fmt.Fprintln(v.out, dimStyle.Render(fmt.Sprintf(refreshNote, interval)))
	}
	return nil
}

// WatchOptions tune the live lock monitor.
type WatchOptions struct {
	// Poll is the refetch interval. Zero means tracker.LockPollInterval.
	Poll time.Duration
	// Render is how often countdowns are redrawn between polls.
	Render time.Duration
	// Clear is written before each frame, typically a terminal reset.
	Clear string
}

// WatchLocks mounts the in-progress view, polls it and redraws the monitor
// on every fetch and render tick until ctx is done. A failed poll keeps the
// last table and shows the error beneath it.
func (v *View) WatchLocks(ctx context.Context, projectID string, opts WatchOptions) error {
	obs := v.tr.WatchInProgress(projectID, opts.Poll)
	defer obs.Close()
	poll := opts.Poll
	if poll <= 0 {
		poll = tracker.LockPollInterval
	}
	render := opts.Render
	if render <= 0 {
		render = time.Second
	}
	ticker := time.NewTicker(render)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-obs.Updates():
		case <-ticker.C:
		}
		if err := v.frame(obs.Result(), poll, opts.Clear); err != nil {
			return err
		}
	}
}

func (v *View) frame(res query.Result[[]domain.TaskWithLockInfo], poll time.Duration, clear string) error {
	if !res.HasData && res.Err == nil {
		return nil
	}
	if clear != "" {
		fmt.Fprint(v.out, clear)
	}
	if err := v.renderLocks(res.Data, poll); err != nil {
		return err
	}
	if res.Err != nil {
		fmt.Fprintln(v.out, errorStyle.Render("Failed to refresh locks: "+res.Err.Error()))
	}
	return nil
}

// ForceRelease removes the lock on a task regardless of its holder.
func (v *View) ForceRelease(ctx context.Context, projectID, taskID string) error {
	if err := v.tr.ForceRelease(ctx, projectID, taskID); err != nil {
		return fmt.Errorf("force release %s: %w", taskID, err)
	}
	fmt.Fprintf(v.out, "released lock on %s\n", taskID)
	return nil
}
