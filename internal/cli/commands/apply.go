package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shadowfs/internal/shadow"
)

// Operation kinds accepted in a batch file.
const (
	OpAdd    = "add"
	OpDelete = "delete"
	OpRmdir  = "rmdir"
	OpMedia  = "media"
)

// Operation is one step of a batch file.
type Operation struct {
	Op       string  `yaml:"op"`
	FS       string  `yaml:"fs"`
	Path     string  `yaml:"path"`
	Content  *string `yaml:"content"`
	From     string  `yaml:"from"`     // local file, relative to the batch file
	Item     string  `yaml:"item"`     // media only
	Property string  `yaml:"property"` // media only
}

// Batch is the content of a batch file.
type Batch struct {
	Operations []Operation `yaml:"operations"`
}

func (op Operation) String() string {
	switch op.Op {
	case OpMedia:
		return fmt.Sprintf("%s %s", op.Op, op.From)
	default:
		return fmt.Sprintf("%s %s:%s", op.Op, op.FS, op.Path)
	}
}

// Validate checks that op carries the fields its kind needs.
func (op Operation) Validate() error {
	switch op.Op {
	case OpAdd:
		if op.Content == nil && op.From == "" {
			return errors.New("add needs content or from")
		}
		if op.Content != nil && op.From != "" {
			return errors.New("add takes content or from, not both")
		}
	case OpDelete, OpRmdir:
	case OpMedia:
		if op.From == "" {
			return errors.New("media needs from")
		}
		if op.Item != "" {
			if _, err := uuid.Parse(op.Item); err != nil {
				return fmt.Errorf("invalid item id: %w", err)
			}
		}
		if op.Property != "" {
			if _, err := uuid.Parse(op.Property); err != nil {
				return fmt.Errorf("invalid property id: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	if op.FS == "" {
		return fmt.Errorf("%s needs fs", op.Op)
	}
	if strings.TrimSpace(op.Path) == "" {
		return fmt.Errorf("%s needs path", op.Op)
	}
	return nil
}

// LoadBatch reads and validates a batch file. Relative from paths resolve
// against the batch file's directory.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range batch.Operations {
		op := &batch.Operations[i]
		op.Op = strings.ToLower(op.Op)
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
		if op.From != "" && !filepath.IsAbs(op.From) {
			op.From = filepath.Join(dir, filepath.FromSlash(op.From))
		}
	}
	return &batch, nil
}

var applyDryRun bool

var applyCmd = &cobra.Command{
	Use:   "apply <batch.yaml>",
	Short: "Run a batch of file operations in one shadow session",
	Long: `Run every operation of a batch file inside a single shadow session.

The session is committed only if every operation succeeds. Any failure aborts
the session and the real files stay untouched. With --dry-run the session is
always aborted.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "run the operations, then abort the session")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	batch, err := LoadBatch(args[0])
	if err != nil {
		return err
	}
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()
	return applyBatch(env, batch, applyDryRun, cmd.OutOrStdout())
}

func applyBatch(env *environment, batch *Batch, dryRun bool, out io.Writer) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	scope, err := env.registry.Shadow()
	if err != nil {
		return err
	}
	defer scope.Close()
	log.Debugf("[CLI] Applying %d operations in session %s", len(batch.Operations), scope.ID())

	for i, op := range batch.Operations {
		detail, err := runOperation(env, op)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", red("FAIL"), op, err)
			if closeErr := scope.Close(); closeErr != nil {
				log.WithError(closeErr).Warn("[CLI] Abort reported failures")
			}
			fmt.Fprintf(out, "%s session %s\n", yellow("aborted"), scope.ID())
			return fmt.Errorf("operation %d (%s): %w", i+1, op, err)
		}
		if detail != "" {
			fmt.Fprintf(out, "%s %s -> %s\n", green("ok"), op, detail)
		} else {
			fmt.Fprintf(out, "%s %s\n", green("ok"), op)
		}
	}

	if dryRun {
		if err := scope.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s session %s (dry run)\n", yellow("aborted"), scope.ID())
		return nil
	}

	scope.Complete()
	if err := scope.Close(); err != nil {
		var applyErr *shadow.ApplyError
		if errors.As(err, &applyErr) {
			for _, f := range applyErr.Failures {
				fmt.Fprintf(out, "%s %v\n", red("FAIL"), f)
			}
		}
		fmt.Fprintf(out, "%s session %s\n", red("failed"), scope.ID())
		return err
	}
	fmt.Fprintf(out, "%s session %s\n", green("committed"), scope.ID())
	return nil
}

// runOperation applies op to the shadowed filesystems. It returns a detail
// worth printing, such as the URL of stored media.
func runOperation(env *environment, op Operation) (string, error) {
	if op.Op == OpMedia {
		mm, err := env.registry.MediaFiles()
		if err != nil {
			return "", err
		}
		item, property := uuid.New(), uuid.New()
		if op.Item != "" {
			item = uuid.MustParse(op.Item)
		}
		if op.Property != "" {
			property = uuid.MustParse(op.Property)
		}
		p, err := mm.StoreFile(item, property, op.From, true)
		if err != nil {
			return "", err
		}
		return mm.URL(p)
	}

	fs, err := env.filesystem(op.FS)
	if err != nil {
		return "", err
	}
	switch op.Op {
	case OpAdd:
		if op.From != "" {
			return "", fs.AddPhysicalFile(op.Path, op.From, true, true)
		}
		return "", fs.AddFile(op.Path, strings.NewReader(*op.Content), true)
	case OpDelete:
		if !fs.FileExists(op.Path) {
			return "", fmt.Errorf("%s: %w", op.Path, os.ErrNotExist)
		}
		return "", fs.DeleteFile(op.Path)
	case OpRmdir:
		if !fs.DirectoryExists(op.Path) {
			return "", fmt.Errorf("%s: %w", op.Path, os.ErrNotExist)
		}
		return "", fs.DeleteDirectory(op.Path, true)
	}
	return "", fmt.Errorf("unknown op %q", op.Op)
}
