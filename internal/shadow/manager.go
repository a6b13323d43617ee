package shadow

import (
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRootName is the directory under the system temp dir holding
	// every session.
	DefaultRootName = "ShadowFs"

	defaultIDAttempts = 50
)

// Observer is notified of session lifecycle events.
type Observer interface {
	SessionStarted(id string)
	ChangeApplied(id, filesystem string, change Change, err error)
	SessionEnded(id string, completed bool, err error)
}

// Options configures a Manager.
type Options struct {
	Root          string // defaults to <temp>/ShadowFs
	Logger        log.FieldLogger
	Observer      Observer
	MaxIDAttempts int           // defaults to 50
	NewID         func() string // defaults to a short random identifier
}

// Manager owns the single active session and the wrappers it fans out to.
type Manager struct {
	root       string
	log        log.FieldLogger
	observer   Observer
	maxAttempt int
	newID      func() string

	mu       sync.Mutex
	wrappers []*Wrapper
	current  string
	lock     *flock.Flock
}

func NewManager(opts Options) *Manager {
	if opts.Root == "" {
		opts.Root = filepath.Join(os.TempDir(), DefaultRootName)
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.MaxIDAttempts <= 0 {
		opts.MaxIDAttempts = defaultIDAttempts
	}
	if opts.NewID == nil {
		opts.NewID = shortID
	}
	return &Manager{
		root:       opts.Root,
		log:        opts.Logger,
		observer:   opts.Observer,
		maxAttempt: opts.MaxIDAttempts,
		newID:      opts.NewID,
	}
}

// Root returns the directory holding session directories.
func (m *Manager) Root() string {
	return m.root
}

// shortID is the first eight characters of a base32-encoded random UUID.
func shortID() string {
	id := uuid.New()
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:])
	return strings.ToLower(s[:8])
}

// Register adds w to the wrappers sessions fan out to. A wrapper registered
// while a session is active is shadowed immediately.
func (m *Manager) Register(w *Wrapper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.wrappers {
		if existing == w {
			return nil
		}
		if strings.EqualFold(existing.Name(), w.Name()) {
			return fmt.Errorf("register %s: %w", w.Name(), errDuplicateName)
		}
	}
	w.setLogger(m.log)
	if m.current != "" && !w.IsShadowing() {
		if err := w.Shadow(m.sessionDir(m.current)); err != nil {
			return err
		}
	}
	m.wrappers = append(m.wrappers, w)
	return nil
}

var errDuplicateName = errors.New("a filesystem with this name is already registered")

// Wrappers returns the registered wrappers in registration order.
func (m *Manager) Wrappers() []*Wrapper {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Wrapper, len(m.wrappers))
	copy(out, m.wrappers)
	return out
}

// Current returns the active session id, or "".
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) sessionDir(id string) string {
	return filepath.Join(m.root, id)
}

func (m *Manager) lockPath(id string) string {
	return filepath.Join(m.root, id+".lock")
}

// Begin starts a session and shadows every registered wrapper.
func (m *Manager) Begin() (*Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != "" {
		return nil, fmt.Errorf("begin: session %s is active: %w", m.current, ErrAlreadyShadowing)
	}

	id, lock, err := m.createSession()
	if err != nil {
		return nil, err
	}

	dir := m.sessionDir(id)
	for i, w := range m.wrappers {
		if err := w.Shadow(dir); err != nil {
			for _, done := range m.wrappers[:i] {
				_ = done.Unshadow(false, nil)
			}
			m.release(id, lock)
			return nil, fmt.Errorf("begin: %w", err)
		}
	}

	m.current = id
	m.lock = lock
	m.log.Infof("[Shadow] session %s started (%d filesystems)", id, len(m.wrappers))
	if m.observer != nil {
		m.observer.SessionStarted(id)
	}
	return &Scope{manager: m, id: id}, nil
}

// createSession draws identifiers until one names a session that does not
// exist yet. The lock is taken before the directory is created, so Sweep
// never sees an unlocked directory of a session being started.
func (m *Manager) createSession() (string, *flock.Flock, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create shadow root %s: %w", m.root, err)
	}
	for range m.maxAttempt {
		id := m.newID()
		lock := flock.New(m.lockPath(id))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			continue
		}
		if err := os.Mkdir(m.sessionDir(id), 0o755); err != nil {
			os.Remove(lock.Path())
			lock.Unlock()
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		return id, lock, nil
	}
	return "", nil, fmt.Errorf("failed to create a unique session directory after %d attempts", m.maxAttempt)
}

// release unlocks and removes the session lock and directory.
func (m *Manager) release(id string, lock *flock.Flock) {
	if lock != nil {
		if err := lock.Unlock(); err != nil {
			m.log.Warnf("[Shadow] failed to unlock session %s: %v", id, err)
		}
		if err := os.Remove(lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.log.Warnf("[Shadow] failed to remove %s: %v", lock.Path(), err)
		}
	}
	if err := os.RemoveAll(m.sessionDir(id)); err != nil {
		m.log.Warnf("[Shadow] failed to remove session %s: %v", id, err)
	}
}

// End unshadows every wrapper, replaying changes when completed is set. All
// wrappers are processed; failures are returned together as an *ApplyError.
// The session is cleared even when End fails.
func (m *Manager) End(id string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return fmt.Errorf("end %s: %w", id, ErrNotShadowing)
	}
	if m.current != id {
		return fmt.Errorf("end %s: active session is %s: %w", id, m.current, ErrShadowMismatch)
	}

	var failures []*PathError
	for _, w := range m.wrappers {
		var report ReportFunc
		if m.observer != nil {
			name := w.Name()
			report = func(c Change, err error) {
				m.observer.ChangeApplied(id, name, c, err)
			}
		}
		err := w.Unshadow(completed, report)
		if err == nil {
			continue
		}
		var applyErr *ApplyError
		if errors.As(err, &applyErr) {
			for _, f := range applyErr.Failures {
				f.Filesystem = w.Name()
				failures = append(failures, f)
			}
			continue
		}
		failures = append(failures, &PathError{Filesystem: w.Name(), Op: OpDetach, Err: err})
	}

	lock := m.lock
	m.current, m.lock = "", nil
	m.release(id, lock)

	var err error
	if len(failures) > 0 {
		err = &ApplyError{Completed: completed, Failures: failures}
		m.log.Errorf("[Shadow] session %s ended with %d failures", id, len(failures))
	} else {
		m.log.Infof("[Shadow] session %s ended (completed=%v)", id, completed)
	}
	if m.observer != nil {
		m.observer.SessionEnded(id, completed, err)
	}
	return err
}

// Sweep removes leftovers of sessions whose process is gone.
func (m *Manager) Sweep() ([]string, error) {
	return Sweep(m.root)
}

// Scope is a handle on one session. Close ends the session, committing it
// only if Complete was called.
type Scope struct {
	manager   *Manager
	id        string
	mu        sync.Mutex
	completed bool
	closed    bool
}

func (s *Scope) ID() string {
	return s.id
}

// Complete marks the scope so that Close commits.
func (s *Scope) Complete() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}

// Close ends the session. Calls after the first return nil.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	completed := s.completed
	s.mu.Unlock()
	return s.manager.End(s.id, completed)
}
