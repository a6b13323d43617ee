package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove shadow sessions left behind by crashed processes",
	Long: `Remove session directories under the shadow root whose owning process is
gone. Sessions still held by a live process are kept. Swept sessions still
marked active in the journal are recorded as interrupted.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	out := cmd.OutOrStdout()

	swept, err := env.manager.Sweep()
	if err != nil {
		return fmt.Errorf("failed to sweep %s: %w", env.manager.Root(), err)
	}
	for _, id := range swept {
		fmt.Fprintf(out, "removed session %s\n", id)
	}
	if env.journal != nil {
		n, err := env.journal.MarkInterrupted(context.Background(), swept)
		if err != nil {
			return fmt.Errorf("failed to update journal: %w", err)
		}
		if n > 0 {
			fmt.Fprintf(out, "marked %d sessions interrupted\n", n)
		}
	}
	if len(swept) == 0 {
		fmt.Fprintln(out, "nothing to clean up")
	}
	return nil
}
