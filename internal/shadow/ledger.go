package shadow

import (
	"sort"
	"sync"

	"shadowfs/internal/common"
)

// Node is the latest state recorded for one path.
type Node struct {
	Path      string // cleaned path in the caller's original case
	IsDeleted bool
	IsDir     bool
}

func (n Node) Exists() bool { return !n.IsDeleted }
func (n Node) IsFile() bool { return !n.IsDir }

// Ledger maps normalized paths to nodes. Each Set replaces the whole node.
type Ledger struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

func NewLedger() *Ledger {
	return &Ledger{nodes: make(map[string]Node)}
}

// Get looks up path, in any case or separator form.
func (l *Ledger) Get(path string) (Node, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[common.NormalizePath(path)]
	return n, ok
}

func (l *Ledger) Set(path string, isDeleted, isDir bool) {
	clean := common.CleanPath(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[common.NormalizePath(clean)] = Node{Path: clean, IsDeleted: isDeleted, IsDir: isDir}
}

// Children returns the nodes directly under dir, sorted by key.
func (l *Ledger) Children(dir string) []Node {
	key := common.NormalizePath(dir)
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Node
	for k, n := range l.nodes {
		if common.IsChild(key, k) {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

// RemoveDescendants drops every node below dir (dir itself is kept).
func (l *Ledger) RemoveDescendants(dir string) {
	key := common.NormalizePath(dir)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.nodes {
		if common.IsDescendant(key, k) {
			delete(l.nodes, k)
		}
	}
}

// RemoveLiveDescendants drops the nodes below dir that are not deletions.
func (l *Ledger) RemoveLiveDescendants(dir string) {
	key := common.NormalizePath(dir)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, n := range l.nodes {
		if n.Exists() && common.IsDescendant(key, k) {
			delete(l.nodes, k)
		}
	}
}

// Entries returns a snapshot of all nodes, sorted by key.
func (l *Ledger) Entries() []Node {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = make(map[string]Node)
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return common.NormalizePath(nodes[i].Path) < common.NormalizePath(nodes[j].Path)
	})
}
