package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	memorySetFile string
	daysFrom      string
	daysTo        string
	recentDays    int
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB3BA"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// withApp loads the config, opens the app for a one-shot command and
// closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

// memoryCmd represents the memory command
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Read and edit the memory store",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the long-term memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			meta, err := a.store.LongTermInfo(ctx)
			if err != nil {
				return err
			}
			body, err := a.store.ReadLongTerm(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Long-term Memory"))
			if !meta.UpdatedAt.IsZero() {
				fmt.Fprintln(out, metaStyle.Render("updated "+meta.UpdatedAt.Format("2006-01-02 15:04")))
			}
			if strings.TrimSpace(body) == "" {
				fmt.Fprintln(out, metaStyle.Render("(empty)"))
				return nil
			}
			fmt.Fprintln(out, strings.TrimRight(body, "\n"))
			return nil
		})
	},
}

var memoryTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Print today's note",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			note, err := a.store.ReadToday(ctx)
			if err != nil {
				return err
			}
			if note == "" {
				fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render("No notes yet today ("+a.store.Today()+")."))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), note)
			return nil
		})
	},
}

var memoryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the notes of the last days, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			text, err := a.store.RecentDays(ctx, recentDays)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render(fmt.Sprintf("No notes in the last %d days.", recentDays)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
			return nil
		})
	},
}

var memorySetCmd = &cobra.Command{
	Use:   "set [text]",
	Short: "Replace the long-term memory",
	Long:  `Replace the long-term memory with the given text, the content of --file, or stdin when the text is "-".`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := memoryInput(cmd, args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.UpdateLongTerm(ctx, text); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Long-term memory updated.")
			return nil
		})
	},
}

var memoryAppendCmd = &cobra.Command{
	Use:   "append <text>",
	Short: "Append an entry to today's note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return fmt.Errorf("nothing to append")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.AppendToday(ctx, text); err != nil {
				return err
			}
			today := a.store.Today()
			if err := a.index.ReindexDate(ctx, today); err != nil {
				appLog.Warnf("reindex %s: %v", today, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Noted in %s.\n", today)
			return nil
		})
	},
}

var memoryDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "List the days that have notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			days, err := a.store.ListDays(ctx, daysFrom, daysTo)
			if err != nil {
				return err
			}
			for _, d := range days {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		})
	},
}

// memoryInput returns the text for memory set from --file, stdin ("-") or
// the argument.
func memoryInput(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case memorySetFile != "":
		b, err := os.ReadFile(memorySetFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", memorySetFile, err)
		}
		return string(b), nil
	case len(args) == 1 && args[0] == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("provide the new memory as an argument, with --file, or as - to read stdin")
	}
}

func init() {
	memorySetCmd.Flags().StringVarP(&memorySetFile, "file", "f", "", "Read the new memory from a file")
	memoryDaysCmd.Flags().StringVar(&daysFrom, "from", "", "First day (YYYY-MM-DD)")
	memoryDaysCmd.Flags().StringVar(&daysTo, "to", "", "Last day (YYYY-MM-DD)")
	memoryRecentCmd.Flags().IntVarP(&recentDays, "days", "n", 7, "Number of days")

	memoryCmd.AddCommand(memoryShowCmd, memoryTodayCmd, memoryRecentCmd, memorySetCmd, memoryAppendCmd, memoryDaysCmd)
	rootCmd.AddCommand(memoryCmd)
}
