package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/app"
	"chorus/internal/domain"
	"chorus/internal/hierarchy"
	"chorus/internal/views"
)

const clearScreen = "\033[H\033[2J"

func treeCmd() *cobra.Command {
	var opts views.TreeOptions
	cmd := &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Show the task hierarchy of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.Tree(ctx, args[0], hierarchy.New(), opts)
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.Expand, "expand", nil, "task id to expand (repeatable)")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "expand every row above this depth")
	return cmd
}

func kanbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kanban <project-id>",
		Short: "Show the project board by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.Kanban(ctx, args[0])
			})
		},
	}
}

func locksCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "locks <project-id>",
		Short: "Show active task locks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, v *views.View) error {
				if !watch {
					return v.Locks(ctx, args[0])
				}
				opts := a.WatchOptions()
				opts.Clear = clearScreen
				return v.WatchLocks(ctx, args[0], opts)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling until interrupted")
	cmd.AddCommand(lockAcquireCmd())
	cmd.AddCommand(lockHeartbeatCmd())
	cmd.AddCommand(lockReleaseCmd())
	return cmd
}

func lockAcquireCmd() *cobra.Command {
	var purpose string
	cmd := &cobra.Command{
		Use:   "acquire <task-id>",
		Short: "Take a lock on a task for this caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				l, err := a.Tracker.AcquireLock(ctx, t.ProjectID, t.ID, domain.LockPurpose(purpose))
				if err != nil {
					return err
				}
				return printJSONOrText(l, fmt.Sprintf("locked %s for %s until %s", t.ID, l.LockPurpose, l.ExpiresAt))
			})
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", string(domain.LockPurposeImplementation), "sizing, breakdown, refinement or implementation")
	return cmd
}

func lockHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <task-id>",
		Short: "Extend this caller's lock on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, _ *views.View, t domain.Task) error {
				l, err := a.Tracker.HeartbeatLock(ctx, t.ProjectID, t.ID)
				if err != nil {
					return err
				}
				return printJSONOrText(l, fmt.Sprintf("lock on %s extended until %s", t.ID, l.ExpiresAt))
			})
		},
	}
}

func lockReleaseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release <task-id>",
		Short: "Release a lock, or remove anyone's lock with --force",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTask(cmd.Context(), args[0], func(ctx context.Context, a *app.App, v *views.View, t domain.Task) error {
				if force {
					return v.ForceRelease(ctx, t.ProjectID, t.ID)
				}
				if err := a.Tracker.ReleaseLock(ctx, t.ProjectID, t.ID); err != nil {
					return err
				}
				fmt.Printf("released lock on %s\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release regardless of the holder")
	return cmd
}
