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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"shadowfs/internal/artifacts"
	"shadowfs/internal/config"
)

// SampleOpsName is the sample batch file written by init.
const SampleOpsName = "ops.sample.yaml"

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a shadowfs content root",
	Long: `Initialize a content root in the specified directory (or current directory).

Writes shadowfs.yaml with the well-known filesystems, a sample batch file for
'shadowfs apply', and creates every configured filesystem root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfgPath := filepath.Join(absDir, config.FileName)
	written, err := config.WriteDefault(cfgPath)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(out, "Initialized shadowfs in %s\n", absDir)
		fmt.Fprintf(out, "  created %s\n", config.FileName)
	} else {
		fmt.Fprintf(out, "Reinitialized existing shadowfs in %s\n", absDir)
		fmt.Fprintf(out, "  %s already exists (not modified)\n", config.FileName)
	}

	samplePath := filepath.Join(absDir, SampleOpsName)
	if _, err := os.Stat(samplePath); err != nil {
		if err := os.WriteFile(samplePath, artifacts.SampleOps, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", SampleOpsName, err)
		}
		fmt.Fprintf(out, "  created %s\n", SampleOpsName)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	for _, fs := range cfg.Filesystems {
		root := cfg.ResolveRoot(fs)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("failed to create root for %s: %w", fs.Name, err)
		}
		rel, err := filepath.Rel(absDir, root)
		if err != nil {
			rel = root
		}
		fmt.Fprintf(out, "  %-15s %s\n", fs.Name, filepath.ToSlash(rel))
	}
	return nil
}
