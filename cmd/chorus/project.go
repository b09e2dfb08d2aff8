package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/app"
	"chorus/internal/domain"
	"chorus/internal/views"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects with point totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.ProjectList(ctx)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				p, err := a.Tracker.CreateProject(ctx, domain.ProjectCreate{
					Name:        name,
					Description: optionalString(cmd, "description", desc),
				})
				if err != nil {
					return err
				}
				return printJSONOrText(p, fmt.Sprintf("created project %s (%s)", p.Name, p.ID))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *app.App, v *views.View) error {
				return v.ProjectShow(ctx, args[0])
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Rename or describe a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.ProjectUpdate{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", desc),
			}
			if in.Name == nil && in.Description == nil {
				return fmt.Errorf("nothing to update: pass --name or --description")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				p, err := a.Tracker.UpdateProject(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrText(p, fmt.Sprintf("updated project %s", p.ID))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and all of its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *views.View) error {
				if err := a.Tracker.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				return printJSONOrText(map[string]string{"deleted": args[0]}, "deleted project "+args[0])
			})
		},
	}
}
