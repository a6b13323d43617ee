package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, SchemeUnique, cfg.MediaScheme)
	assert.Equal(t, filepath.Join(os.TempDir(), "ShadowFs"), cfg.ShadowRoot)
	assert.Empty(t, cfg.Path())

	var names []string
	for _, fs := range cfg.Filesystems {
		names = append(names, fs.Name)
	}
	assert.Equal(t, WellKnown, names)

	media, ok := cfg.Filesystem("MEDIA")
	require.True(t, ok)
	assert.Equal(t, "/media", media.URL)
	assert.Equal(t, filepath.Join(".", "wwwroot", "media"), cfg.ResolveRoot(media))

	scripts, ok := cfg.Filesystem(Scripts)
	require.True(t, ok)
	assert.Equal(t, []string{"*.map"}, scripts.Ignore)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{LogLevel: "debug", Filesystems: []Filesystem{}}
	cfg.ApplyDefaults()

	assert.Equal(t, ".", cfg.ContentRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.Filesystems, "explicit empty list is kept")
	assert.Empty(t, cfg.Journal)
	assert.Empty(t, cfg.JournalPath())
}

func TestLoad(t *testing.T) {
	t.Run("from path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
content_root: site
journal: history.db
media_scheme: two-guids
filesystems:
  - name: templates
    root: tpl
    url: /tpl
  - name: shared
    root: /srv/shared
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, filepath.Join(dir, "site"), cfg.ContentRoot)
		assert.Equal(t, filepath.Join(dir, "site", "history.db"), cfg.JournalPath())
		assert.Equal(t, SchemeTwoGuids, cfg.MediaScheme)
		require.Len(t, cfg.Filesystems, 2)
		assert.Equal(t, filepath.Join(dir, "site", "tpl"), cfg.ResolveRoot(cfg.Filesystems[0]))
		assert.Equal(t, "/srv/shared", cfg.ResolveRoot(cfg.Filesystems[1]))
	})

	t.Run("from environment", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "env.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: trace\n"), 0o644))
		t.Setenv(EnvConfig, path)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "trace", cfg.LogLevel)
		assert.Len(t, cfg.Filesystems, len(WellKnown))
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid content", func(t *testing.T) {
		tests := map[string]string{
			"duplicate": "filesystems:\n  - {name: a, root: a}\n  - {name: A, root: b}\n",
			"no root":   "filesystems:\n  - {name: a}\n",
			"bad name":  "filesystems:\n  - {name: a/b, root: a}\n",
			"scheme":    "media_scheme: flat\n",
			"log level": "log_level: loud\n",
			"not yaml":  "filesystems: [\n",
		}
		for name, body := range tests {
			t.Run(name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "bad.yaml")
				require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
				_, err := Load(path)
				assert.Error(t, err)
			})
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		level   log.Level
		enabled bool
	}{
		{"TRACE", log.TraceLevel, true},
		{"debug", log.DebugLevel, true},
		{"", log.InfoLevel, true},
		{"warn", log.WarnLevel, true},
		{"off", log.PanicLevel, false},
	}
	for _, tt := range tests {
		level, enabled, err := ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.level, level, tt.in)
		assert.Equal(t, tt.enabled, enabled, tt.in)
	}

	_, _, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "conf", FileName)

	written, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, written)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Filesystems, len(WellKnown))
}
