package shadow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyShadowing = errors.New("already shadowing")
	ErrNotShadowing     = errors.New("not shadowing")
	ErrShadowMismatch   = errors.New("not the current shadow")
)

// Op names a replay step.
type Op string

const (
	OpWrite  Op = "write"  // copy a shadowed file into the wrapped filesystem
	OpDelete Op = "delete" // delete a file
	OpRmdir  Op = "rmdir"  // delete a directory tree
	OpClear  Op = "clear"  // delete a file standing where a directory now exists
	OpDetach Op = "detach" // unshadowing itself failed
)

// Change is one replay step.
type Change struct {
	Path string
	Op   Op
}

// PathError records a failed replay step.
type PathError struct {
	Filesystem string
	Path       string
	Op         Op
	Err        error
}

func (e *PathError) Error() string {
	if e.Filesystem != "" {
		return fmt.Sprintf("%s %s:%s: %v", e.Op, e.Filesystem, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// ApplyError aggregates every failure collected while ending a session.
type ApplyError struct {
	Completed bool
	Failures  []*PathError
}

func (e *ApplyError) Error() string {
	var b strings.Builder
	if e.Completed {
		b.WriteString("failed to apply all changes")
	} else {
		b.WriteString("failed to abort")
	}
	fmt.Fprintf(&b, " (%d failures)", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *ApplyError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
