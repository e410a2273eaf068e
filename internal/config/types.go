package config

import "time"

// Config is the complete recognize-gw configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	History    HistoryConfig    `yaml:"history"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	PathPrefix string `yaml:"path_prefix"`
	// RequestTimeout bounds how long a handler waits on a job result.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// APIKey, when set, requires a bearer token on every endpoint except
	// the health check.
	APIKey string `yaml:"api_key"`
}

// RecognizerConfig defines the external tool and worker pool settings.
type RecognizerConfig struct {
	Command string `yaml:"command"`
	Workers int    `yaml:"workers"`
	// JobTimeout bounds one tool invocation; the child is terminated past it.
	JobTimeout time.Duration `yaml:"job_timeout"`
	// TerminationGrace is the delay between SIGTERM and SIGKILL.
	TerminationGrace time.Duration `yaml:"termination_grace"`
	// Debug retains per-job workspaces for inspection.
	Debug bool `yaml:"debug"`
}

// WorkspaceConfig defines where per-job directories live and how stale ones
// are swept.
type WorkspaceConfig struct {
	BaseDir       string        `yaml:"base_dir"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepAfter    time.Duration `yaml:"sweep_after"`
}

// HistoryConfig defines the job-outcome store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "recognize-gw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:         "0.0.0.0:5000",
			PathPrefix:     "/",
			RequestTimeout: 10 * time.Minute,
		},
		Recognizer: RecognizerConfig{
			Command:          "tesseract-recognize",
			Workers:          4,
			JobTimeout:       10 * time.Minute,
			TerminationGrace: 5 * time.Second,
		},
		Workspace: WorkspaceConfig{
			BaseDir:       "./data/workspaces",
			SweepInterval: time.Hour,
			SweepAfter:    24 * time.Hour,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/history.db",
		},
	}
}
