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

// Package config loads the shadowfs YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"shadowfs/internal/artifacts"
)

// EnvConfig names the environment variable overriding the config path.
const EnvConfig = "SHADOWFS_CONFIG"

// FileName is the configuration file looked up in the working directory.
const FileName = "shadowfs.yaml"

// Well-known filesystem names.
const (
	Views         = "views"
	PartialViews  = "partial-views"
	MacroPartials = "macro-partials"
	Scripts       = "scripts"
	Stylesheets   = "stylesheets"
	Media         = "media"
)

// WellKnown lists the filesystems every registry carries, in registration
// order.
var WellKnown = []string{Views, PartialViews, MacroPartials, Scripts, Stylesheets, Media}

// Media path schemes.
const (
	SchemeUnique   = "unique"
	SchemeCombined = "combined"
	SchemeTwoGuids = "two-guids"
)

// Filesystem configures one logical filesystem.
type Filesystem struct {
	Name   string   `yaml:"name"`
	Root   string   `yaml:"root"`   // relative roots resolve against content_root
	URL    string   `yaml:"url"`    // public URL prefix
	Ignore []string `yaml:"ignore"` // gitignore-style patterns hidden from listings
}

// Config is the shadowfs configuration.
type Config struct {
	ContentRoot string       `yaml:"content_root"` // default: "."
	ShadowRoot  string       `yaml:"shadow_root"`  // default: <temp>/ShadowFs
	LogLevel    string       `yaml:"log_level"`    // trace, debug, info, warn, off
	Journal     string       `yaml:"journal"`      // empty disables the journal
	MediaScheme string       `yaml:"media_scheme"` // default: "unique"
	Filesystems []Filesystem `yaml:"filesystems"`

	// path is the file the config was loaded from, if any.
	path string
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.ContentRoot == "" {
		cfg.ContentRoot = "."
	}
	if cfg.ShadowRoot == "" {
		cfg.ShadowRoot = filepath.Join(os.TempDir(), "ShadowFs")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MediaScheme == "" {
		cfg.MediaScheme = SchemeUnique
	}
	if cfg.Filesystems == nil {
		cfg.Filesystems = defaultFilesystems()
	}
}

func defaultFilesystems() []Filesystem {
	var cfg Config
	if err := yaml.Unmarshal(artifacts.DefaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg.Filesystems
}

// Validate checks names, schemes and levels.
func (cfg *Config) Validate() error {
	seen := make(map[string]bool)
	for _, fs := range cfg.Filesystems {
		if fs.Name == "" {
			return errors.New("filesystem with empty name")
		}
		if strings.ContainsAny(fs.Name, `/\`) || fs.Name == "." || fs.Name == ".." {
			return fmt.Errorf("invalid filesystem name %q", fs.Name)
		}
		key := strings.ToLower(fs.Name)
		if seen[key] {
			return fmt.Errorf("duplicate filesystem %q", fs.Name)
		}
		seen[key] = true
		if fs.Root == "" {
			return fmt.Errorf("filesystem %q has no root", fs.Name)
		}
	}
	switch cfg.MediaScheme {
	case SchemeUnique, SchemeCombined, SchemeTwoGuids:
	default:
		return fmt.Errorf("unknown media scheme %q", cfg.MediaScheme)
	}
	if _, _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// Path returns the file the config was loaded from, or "" for defaults.
func (cfg *Config) Path() string {
	return cfg.path
}

// Filesystem returns the named filesystem, matched case-insensitively.
func (cfg *Config) Filesystem(name string) (Filesystem, bool) {
	for _, fs := range cfg.Filesystems {
		if strings.EqualFold(fs.Name, name) {
			return fs, true
		}
	}
	return Filesystem{}, false
}

// ResolveRoot returns the absolute root of fs.
func (cfg *Config) ResolveRoot(fs Filesystem) string {
	return cfg.resolve(fs.Root)
}

// JournalPath returns the absolute journal path, or "" when disabled.
func (cfg *Config) JournalPath() string {
	if cfg.Journal == "" {
		return ""
	}
	return cfg.resolve(cfg.Journal)
}

func (cfg *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.ContentRoot, filepath.FromSlash(p))
}

// ParseLogLevel maps a configured level (case insensitive) to a logrus level.
// off reports false.
func ParseLogLevel(level string) (log.Level, bool, error) {
	switch strings.ToLower(level) {
	case "trace":
		return log.TraceLevel, true, nil
	case "debug":
		return log.DebugLevel, true, nil
	case "", "info":
		return log.InfoLevel, true, nil
	case "warn", "warning":
		return log.WarnLevel, true, nil
	case "off", "none":
		return log.PanicLevel, false, nil
	}
	return log.InfoLevel, false, fmt.Errorf("unknown log level %q", level)
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	return parse(artifacts.DefaultConfig, "")
}

// Load reads the configuration at path. An empty path falls back to
// $SHADOWFS_CONFIG, then ./shadowfs.yaml, then the embedded defaults.
// Relative content roots resolve against the config file's directory.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = FileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	cfg.path = path

	if path != "" && !filepath.IsAbs(cfg.ContentRoot) {
		abs, err := filepath.Abs(filepath.Join(filepath.Dir(path), cfg.ContentRoot))
		if err != nil {
			return nil, err
		}
		cfg.ContentRoot = abs
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteDefault writes the embedded default configuration to path unless a
// file already exists there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, artifacts.DefaultConfig, 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}
