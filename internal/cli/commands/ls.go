package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var lsFilter string

var lsCmd = &cobra.Command{
	Use:   "ls [filesystem] [path]",
	Short: "List filesystems or the entries of a directory",
	Long: `Without arguments, list the configured filesystems and their roots.
With a filesystem name, list the directories and files under path.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().StringVar(&lsFilter, "filter", "", "wildcard filter for files (e.g. *.css)")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, fs := range env.cfg.Filesystems {
			fmt.Fprintf(out, "%-15s %-25s %s\n", fs.Name, fs.URL, env.cfg.ResolveRoot(fs))
		}
		return nil
	}

	fs, err := env.filesystem(args[0])
	if err != nil {
		return err
	}
	dir := ""
	if len(args) > 1 {
		dir = args[1]
	}

	dirs, err := fs.GetDirectories(dir)
	if err != nil {
		return err
	}
	files, err := fs.GetFiles(dir, lsFilter)
	if err != nil {
		return err
	}
	blue := color.New(color.FgBlue).SprintFunc()
	for _, d := range dirs {
		fmt.Fprintln(out, blue(d+"/"))
	}
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	return nil
}
