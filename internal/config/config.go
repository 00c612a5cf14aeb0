package config

import (
	"fmt"
	"time"
)

// Config is the top-level autofix configuration.
type Config struct {
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Git       GitConfig       `koanf:"git"`
	Publish   PublishConfig   `koanf:"publish"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// AnalysisConfig configures the remote reasoning call.
type AnalysisConfig struct {
	// APIKey authenticates against the reasoning service. Absence switches
	// the provider into heuristic mode.
	APIKey Secret `koanf:"api_key"`

	// Model is the reasoning model identifier.
	Model string `koanf:"model"`

	// BaseURL is the messages endpoint. Overridable for testing.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds the single remote call. Kept under the 5 minute
	// outer CI envelope.
	Timeout Duration `koanf:"timeout"`

	// MaxTokens caps the response size.
	MaxTokens int `koanf:"max_tokens"`
}

// GitConfig configures repository operations.
type GitConfig struct {
	// TrunkBranch is the stable branch diffs and pull requests are based on.
	TrunkBranch string `koanf:"trunk_branch"`

	// Remote is the remote name used for push and URL resolution.
	Remote string `koanf:"remote"`

	// AuthorName and AuthorEmail override commit identity when set.
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// PublishConfig configures pull request creation.
type PublishConfig struct {
	// Token authenticates against the repository host. Absence skips
	// pull request creation.
	Token Secret `koanf:"token"`
}

// ArtifactsConfig holds the fixed relative paths the pipeline reads and writes.
type ArtifactsConfig struct {
	TestLogPath  string `koanf:"test_log_path"`
	AnalysisPath string `koanf:"analysis_path"`
	PatchPath    string `koanf:"patch_path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultConfig returns config with production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Model:     "claude-3-5-sonnet-20241022",
			BaseURL:   "https://api.anthropic.com/v1/messages",
			Timeout:   Duration(4 * time.Minute),
			MaxTokens: 4096,
		},
		Git: GitConfig{
			TrunkBranch: "main",
			Remote:      "origin",
		},
		Artifacts: ArtifactsConfig{
			TestLogPath:  "test-output.log",
			AnalysisPath: "ci-analysis.json",
			PatchPath:    "ci-fix.patch",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks invariants that would break the pipeline at runtime.
func (c *Config) Validate() error {
	if c.Git.TrunkBranch == "" {
		return fmt.Errorf("git.trunk_branch cannot be empty")
	}
	if c.Git.Remote == "" {
		return fmt.Errorf("git.remote cannot be empty")
	}
	if c.Analysis.Timeout.Duration() <= 0 {
		return fmt.Errorf("analysis.timeout must be positive")
	}
	if c.Artifacts.AnalysisPath == "" {
		return fmt.Errorf("artifacts.analysis_path cannot be empty")
	}
	if c.Artifacts.PatchPath == "" {
		return fmt.Errorf("artifacts.patch_path cannot be empty")
	}
	return nil
}
