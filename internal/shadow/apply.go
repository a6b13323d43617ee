package shadow

import (
	"errors"
	"fmt"
	"sort"

	"shadowfs/internal/common"
	"shadowfs/internal/filesystem"
)

// ReportFunc receives every replay step with its outcome.
type ReportFunc func(change Change, err error)

// Plan orders the ledger into replay steps against the wrapped filesystem:
// deletions deepest first, then files standing where the overlay now has a
// directory, then writes shallowest first.
func (o *Overlay) Plan() []Change {
	entries := o.ledger.Entries()

	var deletes, clears, writes []Change
	for _, n := range entries {
		switch {
		case n.IsDeleted && n.IsDir:
			deletes = append(deletes, Change{Path: n.Path, Op: OpRmdir})
		case n.IsDeleted:
			deletes = append(deletes, Change{Path: n.Path, Op: OpDelete})
		case n.IsDir:
			if o.inner.FileExists(n.Path) {
				clears = append(clears, Change{Path: n.Path, Op: OpClear})
			}
		default:
			writes = append(writes, Change{Path: n.Path, Op: OpWrite})
		}
	}

	byDepth(deletes, true)
	byDepth(clears, false)
	byDepth(writes, false)

	plan := make([]Change, 0, len(deletes)+len(clears)+len(writes))
	plan = append(plan, deletes...)
	plan = append(plan, clears...)
	return append(plan, writes...)
}

func byDepth(changes []Change, deepestFirst bool) {
	sort.SliceStable(changes, func(i, j int) bool {
		di, dj := common.Depth(changes[i].Path), common.Depth(changes[j].Path)
		if di != dj {
			if deepestFirst {
				return di > dj
			}
			return di < dj
		}
		return common.NormalizePath(changes[i].Path) < common.NormalizePath(changes[j].Path)
	})
}

// Complete replays the ledger against the wrapped filesystem. Every step is
// attempted; failures are collected into an *ApplyError. The ledger is
// cleared either way.
func (o *Overlay) Complete(report ReportFunc) error {
	plan := o.Plan()
	var failures []*PathError
	for _, c := range plan {
		err := o.apply(c)
		if report != nil {
			report(c, err)
		}
		if err != nil {
			o.log.Warnf("[Shadow] %s %s failed: %v", c.Op, c.Path, err)
			failures = append(failures, &PathError{Path: c.Path, Op: c.Op, Err: err})
		}
	}
	o.ledger.Clear()
	o.log.Debugf("[Shadow] applied %d changes (%d failed)", len(plan), len(failures))

	if len(failures) > 0 {
		return &ApplyError{Completed: true, Failures: failures}
	}
	return nil
}

// Abort discards the ledger. The wrapped filesystem is not touched.
func (o *Overlay) Abort() {
	o.ledger.Clear()
}

func (o *Overlay) apply(c Change) error {
	switch c.Op {
	case OpDelete, OpClear:
		return o.inner.DeleteFile(c.Path)
	case OpRmdir:
		return o.inner.DeleteDirectory(c.Path, true)
	case OpWrite:
		if o.inner.DirectoryExists(c.Path) {
			if err := o.inner.DeleteDirectory(c.Path, true); err != nil {
				return err
			}
		}
		return o.write(c.Path)
	}
	return fmt.Errorf("unknown replay op %q", c.Op)
}

// write moves the shadowed file when both sides live on disk and streams it
// otherwise.
func (o *Overlay) write(path string) error {
	if o.inner.CanAddPhysical() && o.store.CanAddPhysical() {
		src, err := o.store.GetFullPath(path)
		if err != nil {
			return err
		}
		err = o.inner.AddPhysicalFile(path, src, true, false)
		if !errors.Is(err, common.ErrNotSupported) {
			return err
		}
	}

	rc, err := o.store.OpenFile(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return o.inner.AddFile(path, rc, true)
}

var _ filesystem.FileSystem = (*Overlay)(nil)
