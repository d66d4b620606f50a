package main

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/mnemo/pkg/executor/cli"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	chatSession   string
	chatShowTools bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent in the terminal",
	Long: `Start an interactive conversation. Each exchange is appended to today's
note and indexed in the background.`,
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
		// Indexing outlives the interrupt so that the last turns get flushed.
		a.startIndexing(context.WithoutCancel(ctx))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			a.Close(closeCtx)
		}()

		provider, err := a.newProvider()
		if err != nil {
			return err
		}

		var exec *cli.Executor
		coordinator := a.newCoordinator(provider, func(e *types.AgentEvent) { exec.Observe(e) })
		exec = cli.NewExecutor(coordinator,
			cli.WithSessionID(chatSession),
			cli.WithShowTools(chatShowTools),
			cli.WithWriter(cmd.OutOrStdout()),
			cli.WithReader(cmd.InOrStdin()))
		appLog.Infof("chat session %s started (model %s)", exec.SessionID(), provider.Model())

		runErr := exec.Run(ctx)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			appLog.Warnf("shutdown: %v", err)
		}
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session ID (default: a new session)")
	chatCmd.Flags().BoolVar(&chatShowTools, "show-tools", true, "Show tool calls and results")
	rootCmd.AddCommand(chatCmd)
}
