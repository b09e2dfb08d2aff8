package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chorus/internal/app"
	"chorus/internal/domain"
	"chorus/internal/views"
)

// withTask loads a task first so mutations can invalidate its project.
func withTask(ctx context.Context, taskID string, fn func(context.Context, *app.App, *views.View, domain.Task) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App, v *views.View) error {
		res, err := a.Tracker.Task(ctx, taskID)
		if err != nil {
			return err
		}
		return fn(ctx, a, v, res.Data)
	})
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskSubtaskCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskReorderCmd())
	task.AddCommand(taskFlagCmd())
	task.AddCommand(taskSizeCmd())
	task.AddCommand(taskRefineCmd())
	task.AddCommand(taskTabCmd("worklog", "Show a task's work log", views.TabWorkLog))
	task.AddCommand(taskTabCmd("commits", "Show commits linked to a task", views.TabCommits))
	task.AddCommand(taskLogCmd())
	task.AddCommand(taskCommitCmd())
	return task
}

func taskShowCmd() *cobra.Command {
	var tab string
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the task detail panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := views.ParseTab(tab)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.Detail(ctx, args[0], t)
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", string(views.TabDetails), "details, worklog or commits")
	return cmd
}

func taskTabCmd(use, short string, tab views.Tab) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.Detail(ctx, args[0], tab)
			})
		},
	}
}

type taskFlags struct {
	name, desc, context, taskType string
	position                      int
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "task name")
	cmd.Flags().StringVar(&f.desc, "description", "", "description")
	cmd.Flags().StringVar(&f.context, "context", "", "context for whoever picks the task up")
	cmd.Flags().StringVar(&f.taskType, "type", string(domain.TaskTypeFeature), "feature, bug or tech_debt")
}

func (f *taskFlags) create(cmd *cobra.Command) domain.TaskCreate {
	in := domain.TaskCreate{
		Name:        f.name,
		Description: optionalString(cmd, "description", f.desc),
		Context:     optionalString(cmd, "context", f.context),
		TaskType:    domain.TaskType(f.taskType),
	}
	if cmd.Flags().Changed("position") {
		pos := f.position
		in.Position = &pos
	}
	return in
}

func taskCreateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a root task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := f.create(cmd)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				t, err := a.Tracker.CreateTask(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrText(t, fmt.Sprintf("created task %s (%s)", t.Name, t.ID))
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&f.position, "position", 0, "position among root tasks (default last)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskSubtaskCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "subtask <parent-id>",
		Short: "Break a task down with a new child",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := f.create(cmd)
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, parent domain.Task) error {
				t, err := a.Tracker.CreateSubtask(ctx, parent.ProjectID, parent.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrText(t, fmt.Sprintf("created subtask %s (%s) under %s", t.Name, t.ID, parent.ID))
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&f.position, "position", 0, "position among siblings (default last)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit a task's name, description, context or type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.TaskUpdate{
				Name:        optionalString(cmd, "name", f.name),
				Description: optionalString(cmd, "description", f.desc),
				Context:     optionalString(cmd, "context", f.context),
			}
			if cmd.Flags().Changed("type") {
				tt := domain.TaskType(f.taskType)
				in.TaskType = &tt
			}
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				updated, err := a.Tracker.UpdateTask(ctx, t.ProjectID, t.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, "updated task "+updated.ID)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				if err := a.Tracker.DeleteTask(ctx, t.ProjectID, t.ID); err != nil {
					return err
				}
				return printJSONOrText(map[string]string{"deleted": t.ID}, "deleted task "+t.ID)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|doing|done|wont_do>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := domain.Status(args[1])
			if !domain.ValidStatus(to) {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return withTask(cmd.Context(), args[0], func(ctx context.Context, _ *app.App, v *views.View, t domain.Task) error {
				updated, err := v.ChangeStatus(ctx, t.ProjectID, t, to)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, fmt.Sprintf("%s is now %s", updated.ID, updated.Status))
			})
		},
	}
}

func taskReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <task-id> <position>",
		Short: "Move a task among its siblings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil || pos < 0 {
				return fmt.Errorf("position must be a non-negative integer, got %q", args[1])
			}
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				updated, err := a.Tracker.Reorder(ctx, t.ProjectID, t.ID, pos)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, fmt.Sprintf("%s moved to position %d", updated.ID, updated.Position))
			})
		},
	}
}

func taskFlagCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "flag <task-id>",
		Short: "Flag a task as needing refinement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTask(cmd.Context(), args[0], func(ctx context.Context, _ *app.App, v *views.View, t domain.Task) error {
				updated, err := v.Flag(ctx, t.ProjectID, t, notes)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, fmt.Sprintf("%s flagged for refinement", updated.ID))
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "what needs clarifying")
	return cmd
}

func readSizing(path string) (domain.SizingRequest, error) {
	var (
		data []byte
		err  error
		in   domain.SizingRequest
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid sizing json: %w", err)
	}
	return in, nil
}

func taskSizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "size <task-id>",
		Short: "Record a sizing breakdown from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readSizing(file)
			if err != nil {
				return err
			}
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				updated, err := a.Tracker.SizeTask(ctx, t.ProjectID, t.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, fmt.Sprintf("%s sized at %d points", updated.ID, derefInt(updated.Points)))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "sizing JSON file, - for stdin")
	return cmd
}

func taskRefineCmd() *cobra.Command {
	var desc, ctxText, note, author string
	cmd := &cobra.Command{
		Use:   "refine <task-id>",
		Short: "Rewrite a task's description or context and clear its flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.RefineRequest{
				Description:    optionalString(cmd, "description", desc),
				Context:        optionalString(cmd, "context", ctxText),
				WorkLogContent: note,
				Author:         optionalString(cmd, "author", author),
			}
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				updated, err := a.Tracker.RefineTask(ctx, t.ProjectID, t.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrText(updated, "refined task "+updated.ID)
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	cmd.Flags().StringVar(&ctxText, "context", "", "new context")
	cmd.Flags().StringVar(&note, "note", "", "work log entry describing the refinement")
	cmd.Flags().StringVar(&author, "author", "", "author of the work log entry")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func taskLogCmd() *cobra.Command {
	var op, content, author string
	cmd := &cobra.Command{
		Use:   "log <task-id>",
		Short: "Append a work log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.WorkLogCreate{
				Author:    optionalString(cmd, "author", author),
				Operation: domain.Operation(op),
				Content:   content,
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				e, err := a.Tracker.AddWorkLog(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrText(e, fmt.Sprintf("logged %s entry %s", e.Operation, e.ID))
			})
		},
	}
	cmd.Flags().StringVar(&op, "operation", string(domain.OperationNote), "sizing, breakdown, refinement, implementation or note")
	cmd.Flags().StringVar(&content, "content", "", "entry text")
	cmd.Flags().StringVar(&author, "author", "", "author")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func taskCommitCmd() *cobra.Command {
	var hash, message, author, at string
	cmd := &cobra.Command{
		Use:   "commit <task-id>",
		Short: "Link a commit to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if at == "" {
				at = time.Now().UTC().Format(time.RFC3339)
			}
			in := domain.CommitCreate{
				CommitHash:  hash,
				Message:     optionalString(cmd, "message", message),
				Author:      optionalString(cmd, "author", author),
				CommittedAt: at,
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				c, err := a.Tracker.AddCommit(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrText(c, fmt.Sprintf("linked %s to %s", c.ShortHash(), c.TaskID))
			})
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "commit hash")
	cmd.Flags().StringVar(&message, "message", "", "commit subject")
	cmd.Flags().StringVar(&author, "author", "", "commit author")
	cmd.Flags().StringVar(&at, "at", "", "commit time, RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
