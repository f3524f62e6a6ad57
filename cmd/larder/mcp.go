package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pario-ai/larder/pkg/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve larder's admin tools over stdio as an MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := a.dispatcher.Restore(ctx); err != nil {
				return err
			}

			var attempts mcp.AttemptQuerier
			if a.syncLog != nil {
				attempts = a.syncLog
			}
			srv := mcp.New(a.dispatcher, a.cache, a.queue, attempts, version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
