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

// Package registry wires the configured logical filesystems to the session
// manager.
package registry

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"shadowfs/internal/config"
	"shadowfs/internal/filesystem"
	"shadowfs/internal/media"
	"shadowfs/internal/shadow"
)

// Registry holds one shadow wrapper per logical filesystem.
type Registry struct {
	manager *shadow.Manager

	mu      sync.RWMutex
	byName  map[string]*shadow.Wrapper
	scheme  media.PathScheme
	mediaFS *media.Manager
}

// New creates a physical filesystem for every configured entry, wraps it and
// registers it with manager.
func New(cfg *config.Config, manager *shadow.Manager) (*Registry, error) {
	scheme, err := media.NewScheme(cfg.MediaScheme)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		manager: manager,
		byName:  make(map[string]*shadow.Wrapper),
		scheme:  scheme,
	}
	for _, fsCfg := range cfg.Filesystems {
		fs, err := filesystem.NewPhysical(cfg.ResolveRoot(fsCfg), fsCfg.URL, filesystem.WithIgnore(fsCfg.Ignore...))
		if err != nil {
			return nil, fmt.Errorf("filesystem %s: %w", fsCfg.Name, err)
		}
		if _, err := r.Register(fsCfg.Name, fs); err != nil {
			return nil, err
		}
	}
	log.Debugf("[Registry] %d filesystems registered", len(cfg.Filesystems))
	return r, nil
}

// Register wraps fs under name. If a session is active the wrapper joins it
// immediately.
func (r *Registry) Register(name string, fs filesystem.FileSystem) (*shadow.Wrapper, error) {
	w := shadow.NewWrapper(name, fs)
	if err := r.manager.Register(w); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.byName[strings.ToLower(name)] = w
	r.mu.Unlock()
	return w, nil
}

// Get returns the named filesystem.
func (r *Registry) Get(name string) (*shadow.Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byName[strings.ToLower(name)]
	return w, ok
}

// MustGet returns the named filesystem or an error naming it.
func (r *Registry) MustGet(name string) (*shadow.Wrapper, error) {
	w, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown filesystem %q", name)
	}
	return w, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	wrappers := r.manager.Wrappers()
	names := make([]string, len(wrappers))
	for i, w := range wrappers {
		names[i] = w.Name()
	}
	return names
}

func (r *Registry) get(name string) *shadow.Wrapper {
	w, _ := r.Get(name)
	return w
}

// Well-known filesystems. Each returns nil when not configured.

func (r *Registry) Views() *shadow.Wrapper         { return r.get(config.Views) }
func (r *Registry) PartialViews() *shadow.Wrapper  { return r.get(config.PartialViews) }
func (r *Registry) MacroPartials() *shadow.Wrapper { return r.get(config.MacroPartials) }
func (r *Registry) Scripts() *shadow.Wrapper       { return r.get(config.Scripts) }
func (r *Registry) Stylesheets() *shadow.Wrapper   { return r.get(config.Stylesheets) }
func (r *Registry) Media() *shadow.Wrapper         { return r.get(config.Media) }

// MediaFiles returns the media file manager writing through the media
// filesystem.
func (r *Registry) MediaFiles() (*media.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mediaFS != nil {
		return r.mediaFS, nil
	}
	w, ok := r.byName[config.Media]
	if !ok {
		return nil, fmt.Errorf("unknown filesystem %q", config.Media)
	}
	r.mediaFS = media.NewManager(w, r.scheme)
	return r.mediaFS, nil
}

// Manager returns the session manager.
func (r *Registry) Manager() *shadow.Manager {
	return r.manager
}

// Shadow begins a session across every registered filesystem.
func (r *Registry) Shadow() (*shadow.Scope, error) {
	return r.manager.Begin()
}
