package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var searchLimit int

var (
	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	snippetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			PaddingLeft(2)
)

// reindexCmd represents the reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the semantic index from the daily notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.index.Enabled() {
				return fmt.Errorf("semantic index is disabled: %v", a.index.Reason())
			}
			n, err := a.index.ReindexAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d days.\n", n)
			return nil
		})
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search past daily notes by meaning",
	Long: `Search the semantic index for the note passages closest to the query.
Today's note is never part of the results.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			if !a.index.Enabled() {
				fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("Semantic search is not available: %v", a.index.Reason())))
				return nil
			}
			if err := a.index.Bootstrap(ctx); err != nil {
				appLog.Warnf("initial indexing incomplete: %v", err)
			}

			results := a.index.Search(ctx, query, searchLimit)
			if len(results) == 0 {
				fmt.Fprintln(out, metaStyle.Render("No matches."))
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(r.Date), scoreStyle.Render(fmt.Sprintf("%.3f", r.Similarity)))
				fmt.Fprintln(out, snippetStyle.Render(strings.TrimSpace(r.Text)))
				fmt.Fprintln(out)
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 5, "Maximum number of results")
	rootCmd.AddCommand(reindexCmd, searchCmd)
}
