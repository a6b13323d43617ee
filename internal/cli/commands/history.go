package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shadowfs/internal/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show recorded shadow sessions",
	Long: `List the most recent sessions from the journal, newest first. With a
session id, show every change replayed for that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of sessions to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func statusColor(status string) func(a ...interface{}) string {
	switch status {
	case journal.StatusCommitted:
		return color.New(color.FgGreen).SprintFunc()
	case journal.StatusFailed:
		return color.New(color.FgRed).SprintFunc()
	case journal.StatusAborted, journal.StatusInterrupted:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func runHistory(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	if env.journal == nil {
		return errors.New("journal is disabled in the configuration")
	}
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		session, err := env.journal.Session(ctx, args[0])
		if err != nil {
			return err
		}
		paint := statusColor(session.Status)
		fmt.Fprintf(out, "session %s %s\n", session.ID, paint(session.Status))
		fmt.Fprintf(out, "  started %s\n", formatTime(session.Started()))
		fmt.Fprintf(out, "  ended   %s\n", formatTime(session.Ended()))
		if session.Error != "" {
			fmt.Fprintf(out, "  error   %s\n", session.Error)
		}
		changes, err := env.journal.Changes(ctx, session.ID)
		if err != nil {
			return err
		}
		red := color.New(color.FgRed).SprintFunc()
		for _, c := range changes {
			line := fmt.Sprintf("  %-7s %s:%s", c.Op, c.Filesystem, c.Path)
			if c.Error != "" {
				line += " " + red(c.Error)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}

	sessions, err := env.journal.Sessions(ctx, historyLimit)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		paint := statusColor(s.Status)
		fmt.Fprintf(out, "%-10s %-12s %s", s.ID, paint(s.Status), formatTime(s.Started()))
		if s.Failures > 0 {
			fmt.Fprintf(out, "  %d failures", s.Failures)
		}
		fmt.Fprintln(out)
	}
	return nil
}
