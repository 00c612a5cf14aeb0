// Package main implements the autofix CLI, a CI-failure remediation pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autofix/internal/analysis"
	"github.com/fyrsmithlabs/autofix/internal/artifact"
	"github.com/fyrsmithlabs/autofix/internal/config"
	"github.com/fyrsmithlabs/autofix/internal/logging"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
	"github.com/fyrsmithlabs/autofix/internal/publish"
	"github.com/fyrsmithlabs/autofix/internal/workspace"
)

var (
	configPath string
	repoPath   string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autofix",
	Short: "Automated CI-failure remediation",
	Long: `autofix analyzes a failed CI test run, commits the findings to an
auto-fix branch, and optionally opens a pull request with a proposed patch.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "path to the repository checkout")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one remediation pipeline pass",
	Long: `Run one remediation pipeline pass against the current checkout.

The run reads the prior test log, diffs the checkout against the trunk
branch, obtains a root-cause analysis (remote when ANALYSIS_API_KEY or
ANTHROPIC_API_KEY is set, heuristic otherwise), commits the findings to an
auto-fix/<hash> branch, pushes it, and opens a pull request when a publishing
token is configured.

The process exits non-zero only when the commit cannot be created; push and
pull request failures are logged as warnings.`,
	SilenceUsage: true,
	RunE:         runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ws, err := workspace.Open(repoPath, cfg.Git, logger)
	if err != nil {
		logger.Error("could not open repository", zap.Error(err))
		return err
	}

	p, err := pipeline.New(
		analysis.NewService(cfg.Analysis, logger),
		ws,
		artifact.NewWriter(repoPath, cfg.Artifacts),
		publish.NewService(cfg.Publish, cfg.Git.TrunkBranch, logger),
		cfg.Git.TrunkBranch,
		logger,
	)
	if err != nil {
		return err
	}

	state, err := p.Run(ctx)
	if err != nil {
		logger.Error("remediation run failed", zap.Error(err))
		return err
	}

	logger.Info("remediation run complete",
		zap.String("branch", state.BranchName),
		zap.String("commit", state.CommitHash),
	)
	return nil
}
