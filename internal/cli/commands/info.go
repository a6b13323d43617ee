// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shadowfs/internal/shadow"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration and session status",
	Long: `Show where the configuration was loaded from, the content and shadow roots,
the configured filesystems and any live shadow sessions.

Examples:
  shadowfs info
  shadowfs --config site/shadowfs.yaml info`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	out := cmd.OutOrStdout()
	cfg := env.cfg

	source := cfg.Path()
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintf(out, "Config: %s\n", source)
	fmt.Fprintf(out, "Content root: %s\n", cfg.ContentRoot)
	fmt.Fprintf(out, "Shadow root: %s\n", cfg.ShadowRoot)
	fmt.Fprintf(out, "Media scheme: %s\n", cfg.MediaScheme)

	fmt.Fprintln(out, "Filesystems:")
	for _, fs := range cfg.Filesystems {
		fmt.Fprintf(out, "  %-15s %s\n", fs.Name, cfg.ResolveRoot(fs))
	}

	live, err := shadow.LiveSessions(cfg.ShadowRoot)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		fmt.Fprintln(out, "Live sessions: none")
	} else {
		fmt.Fprintf(out, "Live sessions: %d\n", len(live))
		for _, id := range live {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}

	if env.journal == nil {
		fmt.Fprintln(out, "Journal: disabled")
		return nil
	}
	fmt.Fprintf(out, "Journal: %s\n", env.journal.Path())
	sessions, err := env.journal.Sessions(context.Background(), 0)
	if err == nil {
		fmt.Fprintf(out, "Recorded sessions: %d\n", len(sessions))
	}
	return nil
}
