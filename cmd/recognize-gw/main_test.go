package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunCLIUnknownCommand(t *testing.T) {
	if got := runCLI([]string{"frobnicate"}); got != 1 {
		t.Fatalf("expected exit 1 for unknown command, got %d", got)
	}
}

func TestRunCLINoArgs(t *testing.T) {
	if got := runCLI(nil); got != 1 {
		t.Fatalf("expected exit 1 for no args, got %d", got)
	}
}

func TestRunCLIHelp(t *testing.T) {
	if got := runCLI([]string{"help"}); got != 0 {
		t.Fatalf("expected exit 0 for help, got %d", got)
	}
}

func TestRunCLIVersion(t *testing.T) {
	if got := runCLI([]string{"version"}); got != 0 {
		t.Fatalf("expected exit 0 for version, got %d", got)
	}
}

func TestConfigLockAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := runCLI([]string{"config", "lock", "--config", path}); got != 0 {
		t.Fatalf("config lock failed with exit %d", got)
	}
	if got := runCLI([]string{"config", "check", "--config", path}); got != 0 {
		t.Fatalf("config check failed with exit %d", got)
	}

	// Tampering must fail the check.
	if err := os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := runCLI([]string{"config", "check", "--config", path}); got != 1 {
		t.Fatalf("expected exit 1 after tampering, got %d", got)
	}
}

func TestConfigCheckRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("recognizer:\n  workers: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := runCLI([]string{"config", "check", "--config", path}); got != 1 {
		t.Fatalf("expected exit 1 for invalid config, got %d", got)
	}
}

func TestConfigRequiresPath(t *testing.T) {
	if got := runCLI([]string{"config", "lock"}); got != 1 {
		t.Fatalf("expected exit 1 without --config, got %d", got)
	}
}
