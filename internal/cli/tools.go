package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/kestrel/internal/config"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to a run",
	Long: `List the tool catalog for the current configuration: core local
tools plus the tools of every enabled remote server.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	loader := config.NewLoader(cfgFile, workdir)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = workdir
	}

	ctx := context.Background()
	if cmd.Context() != nil {
		ctx = cmd.Context()
	}

	executor, _, err := buildExecutor(ctx, cfg)
	if err != nil {
		return err
	}

	for _, descriptor := range executor.Descriptors(true) {
		origin := "local"
		if descriptor.Remote {
			origin = "remote"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-7s %s\n", descriptor.Name, origin, descriptor.Description)
	}
	return nil
}
