package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/kestrel/internal/config"
	"github.com/harun/kestrel/internal/logger"
	"github.com/harun/kestrel/pkg/agent"
	"github.com/harun/kestrel/pkg/coretools"
	"github.com/harun/kestrel/pkg/session"
	"github.com/harun/kestrel/pkg/toolexecutor"
)

var (
	runProvider    string
	runModel       string
	runMode        string
	runMaxTurns    int
	runAutoApprove bool
	runWorkdir     string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute one agent run",
	Long: `Execute one agent run for the given prompt. The run ends when the
model stops requesting tools or the turn budget is exhausted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runProvider, "provider", "", "provider (anthropic, openai, gemini)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model id")
	runCmd.Flags().StringVar(&runMode, "mode", string(agent.ModeHybrid), "execution mode (local-only, hybrid, remote-augmented)")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "turn budget (0 uses the configured default)")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "approve destructive actions without prompting")
	runCmd.Flags().StringVar(&runWorkdir, "workdir", "", "workspace root (default is the current directory)")

	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	workdir := runWorkdir
	if workdir == "" {
		var err error
		workdir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	loader := config.NewLoader(cfgFile, workdir)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = workdir
	}

	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor, engine, err := buildExecutor(ctx, cfg)
	if err != nil {
		return err
	}

	zl := lg.Zerolog()

	// Config edits swap the rule set atomically; in-flight evaluations
	// keep the snapshot they started with.
	watcher, err := config.NewWatcher(loader, func(updated *config.Config) {
		if updated.WorkspaceRoot == "" {
			updated.WorkspaceRoot = cfg.WorkspaceRoot
		}
		if swapErr := engine.Swap(permissionRules(updated)); swapErr != nil {
			zl.Warn().Err(swapErr).Msg("Rejected permission rule reload")
		}
	})
	if err == nil {
		defer watcher.Close()
	} else {
		zl.Warn().Err(err).Msg("Config watcher unavailable")
	}

	sink, err := session.NewManager(cfg.DataDir)
	if err != nil {
		return err
	}
	defer sink.Close()

	runner, err := agent.NewRunner(agent.Config{
		Executor:    executor,
		Sink:        sink,
		Credentials: credentialsByProvider(cfg),
		Logger:      lg.Zerolog(),
	})
	if err != nil {
		return err
	}

	runCfg := buildRunConfig(cfg)
	result, err := runner.Run(ctx, agent.RunParams{
		Prompt: args[0],
		Config: runCfg,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	if result.Status == agent.StatusAborted {
		fmt.Fprintf(cmd.ErrOrStderr(), "run aborted after %d turns (partial result)\n", result.Turns)
	}
	return nil
}

// buildExecutor wires the tool catalog: core tools, permission engine,
// approval gate, and any enabled remote servers.
func buildExecutor(ctx context.Context, cfg *config.Config) (*toolexecutor.ToolExecutor, *toolexecutor.PermissionEngine, error) {
	executor := toolexecutor.New()

	engine, err := toolexecutor.NewPermissionEngine(permissionRules(cfg))
	if err != nil {
		return nil, nil, err
	}
	executor.SetPermissionEngine(engine)

	if runAutoApprove || cfg.AutoApprove {
		executor.SetApprovalManager(toolexecutor.NewApprovalManager(toolexecutor.AutoApproveHandler{}))
	} else {
		executor.SetApprovalManager(toolexecutor.NewApprovalManager(
			toolexecutor.NewCLIApprovalHandler(os.Stdin, os.Stderr),
		))
	}

	if err := coretools.RegisterCoreTools(executor, coretools.Options{WorkspaceRoot: cfg.WorkspaceRoot}); err != nil {
		return nil, nil, err
	}

	for _, server := range cfg.MCPServers {
		if !server.Enabled {
			continue
		}
		adapter := toolexecutor.NewMCPServerAdapter(server.Name, server.Command, server.Args)
		if err := adapter.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start MCP server %s: %w", server.Name, err)
		}
		if _, err := executor.RegisterMCPServer(ctx, adapter); err != nil {
			return nil, nil, fmt.Errorf("failed to register MCP server %s: %w", server.Name, err)
		}
	}

	return executor, engine, nil
}

// permissionRules converts configuration rule sets into engine rules.
func permissionRules(cfg *config.Config) toolexecutor.PermissionRules {
	return toolexecutor.PermissionRules{
		Read: toolexecutor.RuleSet{
			Allow: cfg.Permissions.Read.Allow,
			Deny:  cfg.Permissions.Read.Deny,
		},
		Write: toolexecutor.RuleSet{
			Allow: cfg.Permissions.Write.Allow,
			Deny:  cfg.Permissions.Write.Deny,
		},
		Execute: toolexecutor.RuleSet{
			Allow: cfg.Permissions.Execute.Allow,
			Deny:  cfg.Permissions.Execute.Deny,
		},
		RequireApproval: cfg.RequireApproval,
		Root:            cfg.WorkspaceRoot,
	}
}

func credentialsByProvider(cfg *config.Config) map[string]string {
	creds := make(map[string]string, len(cfg.Providers))
	for _, profile := range cfg.Providers {
		creds[profile.Provider] = profile.APIKey
	}
	// Environment variables take precedence over the config file.
	for provider, envVar := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		if key := os.Getenv(envVar); key != "" {
			creds[provider] = key
		}
	}
	return creds
}

func buildRunConfig(cfg *config.Config) agent.RunConfig {
	runCfg := agent.DefaultRunConfig()
	runCfg.Provider = cfg.DefaultProvider
	runCfg.Model = cfg.DefaultModel
	runCfg.MaxTurns = cfg.MaxIterations
	runCfg.AutoApprove = cfg.AutoApprove || runAutoApprove
	runCfg.WorkingDir = cfg.WorkspaceRoot

	if runProvider != "" {
		runCfg.Provider = runProvider
	}
	if runModel != "" {
		runCfg.Model = runModel
	}
	if runMaxTurns > 0 {
		runCfg.MaxTurns = runMaxTurns
	}
	if mode := strings.TrimSpace(runMode); mode != "" {
		runCfg.Mode = agent.ExecutionMode(mode)
	}
	return runCfg
}
