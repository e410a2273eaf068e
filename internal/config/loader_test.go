package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "recognize-gw", cfg.Service.Name)
	assert.Equal(t, 4, cfg.Recognizer.Workers)
	assert.Equal(t, "tesseract-recognize", cfg.Recognizer.Command)
	assert.Equal(t, 10*time.Minute, cfg.Server.RequestTimeout)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  log_level: debug
server:
  listen: "127.0.0.1:9090"
  path_prefix: /ocr
recognizer:
  command: /usr/local/bin/tesseract-recognize
  workers: 8
  debug: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "/ocr", cfg.Server.PathPrefix)
	assert.Equal(t, 8, cfg.Recognizer.Workers)
	assert.True(t, cfg.Recognizer.Debug)
	// Untouched sections keep their defaults.
	assert.Equal(t, "./data/workspaces", cfg.Workspace.BaseDir)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_section:\n  x: 1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recognizer:\n  workers: 2\n"), 0o644))

	t.Setenv(EnvPrefix+"WORKERS", "6")
	t.Setenv(EnvPrefix+"DEBUG", "true")
	t.Setenv(EnvPrefix+"LISTEN", "0.0.0.0:8000")
	t.Setenv(EnvPrefix+"JOB_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Recognizer.Workers)
	assert.True(t, cfg.Recognizer.Debug)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Listen)
	assert.Equal(t, 90*time.Second, cfg.Recognizer.JobTimeout)
}

func TestEnvParseErrors(t *testing.T) {
	t.Setenv(EnvPrefix+"WORKERS", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidateCatchesBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"bad prefix", func(c *Config) { c.Server.PathPrefix = "ocr" }},
		{"empty command", func(c *Config) { c.Recognizer.Command = " " }},
		{"zero workers", func(c *Config) { c.Recognizer.Workers = 0 }},
		{"empty workspace dir", func(c *Config) { c.Workspace.BaseDir = "" }},
		{"history enabled without path", func(c *Config) { c.History.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: x\n"), 0o644))

	// No checksum file yet: verification is a no-op.
	require.NoError(t, VerifyChecksum(path))

	sum, err := WriteChecksum(path)
	require.NoError(t, err)
	assert.Len(t, sum, 64)

	require.NoError(t, VerifyChecksum(path))

	// Tampering must be detected.
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0o644))
	require.Error(t, VerifyChecksum(path))
}
