package shadow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// Sweep removes session directories and lock files under root that no live
// session holds, and returns the swept session ids. Sessions are held by an
// exclusive lock on <root>/<id>.lock for their whole lifetime.
func Sweep(root string) ([]string, error) {
	ids, err := sessionIDs(root, true)
	if err != nil {
		return nil, err
	}

	var swept []string
	for _, id := range ids {
		lock := flock.New(filepath.Join(root, id+".lock"))
		locked, err := lock.TryLock()
		if err != nil {
			log.Warnf("[Shadow] sweep: failed to lock %s: %v", id, err)
			continue
		}
		if !locked {
			log.Debugf("[Shadow] sweep: session %s is live", id)
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
			log.Warnf("[Shadow] sweep: failed to remove session %s: %v", id, err)
			lock.Unlock()
			continue
		}
		os.Remove(lock.Path())
		lock.Unlock()
		swept = append(swept, id)
	}
	sort.Strings(swept)
	if len(swept) > 0 {
		log.Infof("[Shadow] swept %d stale sessions", len(swept))
	}
	return swept, nil
}

// LiveSessions returns the ids of sessions under root whose lock is held.
func LiveSessions(root string) ([]string, error) {
	ids, err := sessionIDs(root, false)
	if err != nil {
		return nil, err
	}
	var live []string
	for _, id := range ids {
		lock := flock.New(filepath.Join(root, id+".lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if locked {
			lock.Unlock()
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// sessionIDs lists session ids under root from lock files and, when
// withDirs is set, from session directories. A missing root has none.
func sessionIDs(root string, withDirs bool) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shadow root %s: %w", root, err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && withDirs:
			seen[name] = struct{}{}
		case !e.IsDir() && strings.HasSuffix(name, ".lock"):
			seen[strings.TrimSuffix(name, ".lock")] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
