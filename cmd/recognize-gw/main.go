package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pagekit/recognize-gw/internal/api"
	"github.com/pagekit/recognize-gw/internal/config"
	"github.com/pagekit/recognize-gw/internal/dispatch"
	"github.com/pagekit/recognize-gw/internal/events"
	"github.com/pagekit/recognize-gw/internal/history"
	"github.com/pagekit/recognize-gw/internal/log"
	"github.com/pagekit/recognize-gw/internal/queue"
	"github.com/pagekit/recognize-gw/internal/recognizer"
	"github.com/pagekit/recognize-gw/internal/tui/watch"
	"github.com/pagekit/recognize-gw/internal/workspace"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "config":
		return runConfig(args)
	case "version", "--version":
		return runVersion()
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`recognize-gw - HTTP gateway for the tesseract-recognize tool

Usage:
  recognize-gw <command> [flags]

Commands:
  start          Start the recognition service in foreground
  watch          Real-time monitoring TUI for a running instance
  config lock    Record the config file integrity checksum
  config check   Validate the config file and verify its checksum
  version        Show version information
  help           Show this help message

Use 'recognize-gw <command> --help' for command-specific flags.
`)
}

func runVersion() int {
	commit := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
				commit = setting.Value[:12]
			}
		}
	}
	fmt.Printf("recognize-gw %s\n", strings.TrimSpace(version))
	fmt.Printf("commit: %s\n", commit)
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	listen := fs.String("listen", "", "Listen address (overrides config)")
	workers := fs.Int("workers", 0, "Worker pool size (overrides config)")
	command := fs.String("command", "", "Recognizer command (overrides config)")
	debugMode := fs.Bool("debug", false, "Retain job workspaces for inspection")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Flags beat environment and file values.
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *workers > 0 {
		cfg.Recognizer.Workers = *workers
	}
	if *command != "" {
		cfg.Recognizer.Command = *command
	}
	if *debugMode {
		cfg.Recognizer.Debug = true
	}

	if *configPath != "" {
		if err := config.VerifyChecksum(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Config integrity check failed: %v\n", err)
			return 1
		}
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("recognize-gw starting", "version", version, "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history store", "path", cfg.History.Path, "error", err)
			return 1
		}
		defer store.Close()
		logger.Info("history store opened", "path", cfg.History.Path)
	}

	wsManager, err := workspace.NewFSManager(cfg.Workspace.BaseDir)
	if err != nil {
		logger.Error("failed to initialize workspace manager", "base_dir", cfg.Workspace.BaseDir, "error", err)
		return 1
	}

	q := queue.New()
	hub := events.NewHub(256)
	runner := recognizer.NewCLI(cfg.Recognizer.Command, cfg.Recognizer.TerminationGrace)

	var recorder dispatch.Recorder
	if store != nil {
		recorder = store
	}
	pool := dispatch.New(q, wsManager, runner, recorder, hub, dispatch.Config{
		Workers:    cfg.Recognizer.Workers,
		Debug:      cfg.Recognizer.Debug,
		JobTimeout: cfg.Recognizer.JobTimeout,
	})
	pool.Start(ctx)
	logger.Info("worker pool started", "workers", cfg.Recognizer.Workers, "command", cfg.Recognizer.Command)

	go sweepLoop(ctx, wsManager, cfg.Workspace.SweepInterval, cfg.Workspace.SweepAfter)

	var historyReader api.HistoryReader
	if store != nil {
		historyReader = store
	}
	apiServer := api.New(api.Config{
		Listen:         cfg.Server.Listen,
		PathPrefix:     cfg.Server.PathPrefix,
		RequestTimeout: cfg.Server.RequestTimeout,
		APIKey:         cfg.Server.APIKey,
		Workers:        cfg.Recognizer.Workers,
	}, q, runner, historyReader, hub, log.WithComponent("api"))

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("recognize-gw running (press Ctrl+C to stop)")

	ret := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		ret = 1
	}

	// Let in-flight jobs finish before exiting.
	pool.Wait()
	logger.Info("recognize-gw stopped")
	return ret
}

// sweepLoop periodically removes stale workspace directories left behind by
// debug retention or crashes.
func sweepLoop(ctx context.Context, m workspace.Manager, interval, olderThan time.Duration) {
	if interval <= 0 {
		return
	}
	logger := log.WithComponent("sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.Sweep(ctx, olderThan)
			if err != nil {
				logger.Warn("workspace sweep failed", "error", err)
				continue
			}
			if report.DeletedDirs > 0 {
				logger.Info("swept stale workspaces", "deleted", report.DeletedDirs)
			}
		}
	}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:5000", "Service API URL")
	apiKey := fs.String("api-key", os.Getenv(config.EnvPrefix+"API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runConfig(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: recognize-gw config <lock|check> --config PATH")
		return 1
	}
	action := args[0]

	fs := flag.NewFlagSet("config "+action, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --config is required")
		return 1
	}

	switch action {
	case "lock":
		sum, err := config.WriteChecksum(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write checksum: %v\n", err)
			return 1
		}
		fmt.Printf("Locked %s (blake3: %s)\n", *configPath, sum)
		return 0

	case "check":
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
			return 1
		}
		if err := config.VerifyChecksum(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Integrity check failed: %v\n", err)
			return 1
		}
		fmt.Printf("Config OK: %s\n", *configPath)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}
