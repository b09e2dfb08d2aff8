package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, workspace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("workspace") {
				cfg.Server.Workspace = workspace
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context(), server.Options{
				Addr:            cfg.Server.Addr,
				Workspace:       cfg.Server.Workspace,
				CleanupInterval: cfg.Server.LockCleanupInterval,
				Logger:          logger,
				Ready: func(bound string) {
					fmt.Printf("Serving Chorus API on http://%s (OpenAPI at /openapi.json, docs at /docs)\n", bound)
				},
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "directory holding .chorus/chorus.db")
	return cmd
}
