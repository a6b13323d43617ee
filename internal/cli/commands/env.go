package commands

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"shadowfs/internal/config"
	"shadowfs/internal/journal"
	"shadowfs/internal/registry"
	"shadowfs/internal/shadow"
)

// environment is everything a command needs to work on the configured
// filesystems.
type environment struct {
	cfg      *config.Config
	journal  *journal.Journal // nil when disabled
	manager  *shadow.Manager
	registry *registry.Registry
}

// openEnvironment loads the config, opens the journal and registers every
// configured filesystem.
func openEnvironment() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		if err := setupLogging(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	env := &environment{cfg: cfg}
	opts := shadow.Options{Root: cfg.ShadowRoot}
	if p := cfg.JournalPath(); p != "" {
		j, err := journal.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		env.journal = j
		opts.Observer = j
	}
	env.manager = shadow.NewManager(opts)

	env.registry, err = registry.New(cfg, env.manager)
	if err != nil {
		env.Close()
		return nil, err
	}
	log.Debugf("[CLI] Loaded %d filesystems from %q", len(cfg.Filesystems), cfg.Path())
	return env, nil
}

func (e *environment) filesystem(name string) (*shadow.Wrapper, error) {
	return e.registry.MustGet(name)
}

func (e *environment) Close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.WithError(err).Warn("[CLI] Failed to close journal")
		}
	}
}
