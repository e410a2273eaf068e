package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "RECOGNIZE_GW_"

// Load reads configuration with the documented precedence: defaults, then
// the YAML file (if path is non-empty), then environment overrides. CLI
// flags are applied on top by the caller.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the rest of the service assumes.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("server.listen is empty")
	}
	if !strings.HasPrefix(cfg.Server.PathPrefix, "/") {
		return fmt.Errorf("server.path_prefix %q must start with /", cfg.Server.PathPrefix)
	}
	if strings.TrimSpace(cfg.Recognizer.Command) == "" {
		return fmt.Errorf("recognizer.command is empty")
	}
	if cfg.Recognizer.Workers < 1 {
		return fmt.Errorf("recognizer.workers must be at least 1, got %d", cfg.Recognizer.Workers)
	}
	if strings.TrimSpace(cfg.Workspace.BaseDir) == "" {
		return fmt.Errorf("workspace.base_dir is empty")
	}
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path is empty while history is enabled")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	setString("NAME", &cfg.Service.Name)
	setString("LOG_LEVEL", &cfg.Service.LogLevel)
	setString("LOG_FORMAT", &cfg.Service.LogFormat)
	setString("LISTEN", &cfg.Server.Listen)
	setString("PATH_PREFIX", &cfg.Server.PathPrefix)
	setString("API_KEY", &cfg.Server.APIKey)
	setString("COMMAND", &cfg.Recognizer.Command)
	setString("WORKSPACE_DIR", &cfg.Workspace.BaseDir)
	setString("HISTORY_PATH", &cfg.History.Path)

	if v, ok := os.LookupEnv(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sWORKERS=%q: %w", EnvPrefix, v, err)
		}
		cfg.Recognizer.Workers = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sDEBUG=%q: %w", EnvPrefix, v, err)
		}
		cfg.Recognizer.Debug = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "HISTORY_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sHISTORY_ENABLED=%q: %w", EnvPrefix, v, err)
		}
		cfg.History.Enabled = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sREQUEST_TIMEOUT=%q: %w", EnvPrefix, v, err)
		}
		cfg.Server.RequestTimeout = d
	}
	if v, ok := os.LookupEnv(EnvPrefix + "JOB_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sJOB_TIMEOUT=%q: %w", EnvPrefix, v, err)
		}
		cfg.Recognizer.JobTimeout = d
	}
	return nil
}
