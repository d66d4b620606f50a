package main

import (
	"context"

	"github.com/entrhq/mnemo/pkg/mcpserver"
	"github.com/spf13/cobra"
)

var mcpChat bool

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory tools over MCP (stdio)",
	Long: `Serve the memory tools to an MCP client over stdin/stdout.

With --chat the server also publishes mnemo_chat, which runs a full agent
turn with the configured model. Logs go to the log file, never to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		a.startIndexing(context.WithoutCancel(ctx))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			a.Close(closeCtx)
		}()

		mcpserver.Version = version
		var opts []mcpserver.Option
		if mcpChat {
			provider, err := a.newProvider()
			if err != nil {
				return err
			}
			coordinator := a.newCoordinator(provider, nil)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := coordinator.Shutdown(shutdownCtx); err != nil {
					appLog.Warnf("shutdown: %v", err)
				}
			}()
			opts = append(opts, mcpserver.WithChat(coordinator))
		}

		srv, err := mcpserver.New(a.registry, opts...)
		if err != nil {
			return err
		}
		return srv.ServeStdio()
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpChat, "chat", false, "Also publish the mnemo_chat tool (needs a model API key)")
	rootCmd.AddCommand(mcpCmd)
}
