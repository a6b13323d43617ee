package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shadowfs/internal/export"
)

var (
	serveFS    string
	serveAddr  string
	serveAbort bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Export a shadowed filesystem over NFS",
	Long: `Begin a shadow session and export one filesystem over NFSv3. Changes made
through the export land in the session. On interrupt the session is committed,
or aborted with --abort.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFS, "fs", "", "filesystem to export (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", export.DefaultAddr, "listen address")
	serveCmd.Flags().BoolVar(&serveAbort, "abort", false, "abort the session on shutdown instead of committing")
	_ = serveCmd.MarkFlagRequired("fs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	out := cmd.OutOrStdout()

	fs, err := env.filesystem(serveFS)
	if err != nil {
		return err
	}
	scope, err := env.registry.Shadow()
	if err != nil {
		return err
	}
	defer scope.Close()

	server := export.NewServer(fs)
	if err := server.Listen(serveAddr); err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- server.Serve() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.WaitReady(ctx); err != nil {
		server.Shutdown()
		return fmt.Errorf("nfs server did not come up: %w", err)
	}
	fmt.Fprintf(out, "exporting %s on %s (session %s)\n", fs.Name(), server.Addr(), scope.ID())

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("[NFS] Shutting down")
	case serveErr = <-errc:
	}
	server.Shutdown()

	if serveErr != nil || serveAbort {
		if err := scope.Close(); err != nil {
			log.WithError(err).Warn("[CLI] Abort reported failures")
		}
		fmt.Fprintf(out, "%s session %s\n", color.YellowString("aborted"), scope.ID())
		return serveErr
	}
	scope.Complete()
	if err := scope.Close(); err != nil {
		fmt.Fprintf(out, "%s session %s\n", color.RedString("failed"), scope.ID())
		return err
	}
	fmt.Fprintf(out, "%s session %s\n", color.GreenString("committed"), scope.ID())
	return nil
}
