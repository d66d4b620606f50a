// Package main provides the mnemo command: a personal agent with a durable
// daily journal, a long-term fact sheet and semantic recall of past days.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	workspace  string
	verbose    bool
	version    = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "A personal agent that remembers",
	Long: `mnemo is a conversational agent with durable memory.

Every exchange is appended to a daily note; stable facts live in a long-term
memory sheet. Past days are searchable by meaning when the semantic index is
enabled.

Quick Start:
  mnemo chat                         # talk in the terminal
  mnemo memory today                 # print today's note
  mnemo search "budget with Bob"     # search past days
  mnemo mcp                          # serve the memory tools over MCP`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default <workspace>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default ~/.mnemo, or $MNEMO_WORKSPACE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
