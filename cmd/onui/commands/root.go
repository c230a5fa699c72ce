// Package commands implements the onui CLI command tree: the root
// session runner plus the `config` management subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lumiknit/onui/pkg/onui/engine"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewRootCmd builds the onui command tree. version is injected at build
// time via ldflags.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onui [path]",
		Short:   "A terminal agent whose only effector is a sandboxed Lua VM",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSession,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "explicit config file path")
	cmd.Flags().Bool("pipe", false, "non-interactive pipe mode (no prompt glyph, no readline editing)")

	cmd.AddCommand(newConfigCmd())
	return cmd
}

// runSession is the root command's default action: load config, wire the
// engine, and drive the CLI I/O loop until exit.
func runSession(cmd *cobra.Command, args []string) error {
	workspace := "."
	if len(args) == 1 {
		workspace = args[0]
	}
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("resolving workspace path: %w", err)
	}

	pipe, _ := cmd.Flags().GetBool("pipe")
	cfgFlag, _ := cmd.Flags().GetString("config")

	logger := newLogger(pipe)

	cfg, err := loadConfigOrDefault(cfgFlag, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Workspace = absWorkspace

	provider, ok := cfg.LLM[cfg.DefaultLLM]
	if !ok {
		return fmt.Errorf("%w: %q", engine.ErrUnknownDefaultLLM, cfg.DefaultLLM)
	}
	apiKey, err := provider.ResolveAPIKey(engine.KeyringAPIKeyLookup)
	if err != nil {
		return fmt.Errorf("resolving API key for %q: %w", cfg.DefaultLLM, err)
	}

	llmClient := engine.NewOpenAIClient(provider, apiKey, provider.ResolveBaseURL(), logger)
	runtime := engine.NewLuaVM()
	defer runtime.Close()
	registry := engine.NewRegistry()

	var audit *engine.AuditLog
	if auditPath := filepath.Join(absWorkspace, ".onui", "audit.db"); auditPath != "" {
		if a, err := engine.OpenAuditLog(auditPath); err != nil {
			logger.Warn("audit log unavailable", "error", err)
		} else {
			audit = a
			defer audit.Close()
		}
	}

	io, err := newCliIO(pipe, logger)
	if err != nil {
		return fmt.Errorf("initializing terminal I/O: %w", err)
	}
	defer io.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go func() {
		<-sigCh
		io.forwardExitSignal()
	}()

	agent := engine.NewAgent(llmClient, runtime, registry, audit, io.channels(), logger)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = "(defaults, no file loaded)"
	}
	logger.Info("starting onui",
		"config", configPath, "llm", cfg.DefaultLLM, "workspace", absWorkspace)

	go io.pumpInput(ctx)
	agent.Run(ctx)

	return nil
}

// loadConfigOrDefault resolves and loads the config file, or falls back
// to DefaultConfig with a warning if none is found.
func loadConfigOrDefault(cliFlag string, logger *slog.Logger) (*engine.Config, error) {
	if cliFlag != "" {
		return engine.LoadFromFile(cliFlag)
	}

	paths := engine.ConfigSearchPaths("")
	cfg, err := engine.LoadFromFileList(paths, logger)
	if err == nil {
		return cfg, nil
	}

	logger.Warn("no config file found, using defaults (OPENAI_API_KEY must be set)")
	cfg = engine.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process-wide slog.Logger on stderr: JSON in pipe
// mode or when stderr is not a terminal, text otherwise.
func newLogger(pipe bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if pipe || !term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
