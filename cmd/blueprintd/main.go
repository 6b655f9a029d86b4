// Blueprintd generates automation blueprints from consultation-style
// conversations.
//
// It exposes a JSON API for session intake, clarification turns, and
// blueprint generation, plus a WebSocket event stream for observability.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	blueprintd serve             Start the API server
//	blueprintd ask [flags]       Generate one blueprint from flag intake (for testing)
//	blueprintd version           Print version and build information
//	blueprintd -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/blueprintlab/blueprintd/internal/api"
	"github.com/blueprintlab/blueprintd/internal/buildinfo"
	"github.com/blueprintlab/blueprintd/internal/cache"
	"github.com/blueprintlab/blueprintd/internal/config"
	"github.com/blueprintlab/blueprintd/internal/conversation"
	"github.com/blueprintlab/blueprintd/internal/events"
	"github.com/blueprintlab/blueprintd/internal/generate"
	"github.com/blueprintlab/blueprintd/internal/llm"
	"github.com/blueprintlab/blueprintd/internal/session"
)

// cachePurgeInterval is how often expired cache entries are physically
// removed while serving. Lookup correctness does not depend on it.
const cachePurgeInterval = 6 * time.Hour

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full lifecycle
// can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "blueprintd - Automation Blueprint Generator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: blueprintd [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Generate one blueprint from flag intake (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ask flags:")
	fmt.Fprintln(w, "  -goal <text> -workflow <text> -tools <text> -pain <text>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/blueprintd/config.yaml, /etc/blueprintd/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// newLogger builds the process logger with trace-level naming support.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates, parses, and validates the YAML configuration. If
// explicit is non-empty that exact path is used; otherwise
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// pipeline holds the wired core shared by serve and ask.
type pipeline struct {
	store    *session.SQLiteStore
	cache    *cache.Store
	failures *generate.FailureStore
	bus      *events.Bus
	manager  *conversation.Manager
}

func (p *pipeline) Close() {
	p.failures.Close()
	p.cache.Close()
	p.store.Close()
}

// buildPipeline opens the stores and wires the generation engine and
// conversation manager from configuration.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	store, err := session.NewSQLiteStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	cacheStore, err := cache.NewStore(filepath.Join(cfg.DataDir, "cache.db"),
		cfg.Cache.RetentionDays, cfg.Cache.IsEnabled(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	failures, err := generate.NewFailureStore(filepath.Join(cfg.DataDir, "failures.db"))
	if err != nil {
		cacheStore.Close()
		store.Close()
		return nil, fmt.Errorf("open failure database: %w", err)
	}

	client, err := llm.New(cfg.Generation, logger)
	if err != nil {
		failures.Close()
		cacheStore.Close()
		store.Close()
		return nil, err
	}

	bus := events.New()
	notifier := generate.NewNotifier(bus, logger, 0)
	engine := generate.NewEngine(client, cfg.Generation, failures, notifier, bus, logger)
	manager := conversation.NewManager(store, store, engine, cacheStore, cfg.Conversation, bus, logger)

	return &pipeline{
		store:    store,
		cache:    cacheStore,
		failures: failures,
		bus:      bus,
		manager:  manager,
	}, nil
}

// runServe is the primary operating mode: wire the pipeline, start the
// API server, and block until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting blueprintd",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		// Already validated by config.Validate, so the error path is
		// unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Generation.Provider,
		"model", cfg.Generation.Model,
		"cache_enabled", cfg.Cache.IsEnabled())

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic space reclamation for the blueprint cache.
	go func() {
		ticker := time.NewTicker(cachePurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.cache.PurgeExpired(ctx); err != nil {
					logger.Warn("cache purge failed", "error", err)
				}
			}
		}
	}()

	srv := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, p.manager, p.store, p.cache, p.bus, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

// runAsk generates a single blueprint from flag-provided intake and
// prints it, bypassing the cache so repeated smoke tests always hit the
// provider.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	var intake session.Intake
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			return fmt.Errorf("flag %s needs a value", args[i])
		}
		switch args[i] {
		case "-goal":
			intake.Goal = args[i+1]
		case "-workflow":
			intake.Workflow = args[i+1]
		case "-tools":
			intake.Tools = args[i+1]
		case "-pain":
			intake.PainPoints = args[i+1]
		default:
			return fmt.Errorf("unknown ask flag: %s", args[i])
		}
		i++
	}
	if intake.Goal == "" {
		return fmt.Errorf("usage: blueprintd ask -goal <text> [-workflow <text>] [-tools <text>] [-pain <text>]")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	sess := &session.Session{
		Intake: intake,
		State:  string(conversation.StateClarification),
	}
	if err := p.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	bp, err := p.manager.GenerateBlueprint(ctx, sess.ID, cache.Options{Bypass: true})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, bp.Content)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, bp.DiagramMarkup)
	return nil
}
