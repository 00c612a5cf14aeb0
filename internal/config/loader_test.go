package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Git.TrunkBranch)
	assert.Equal(t, "origin", cfg.Git.Remote)
	assert.Equal(t, 4*time.Minute, cfg.Analysis.Timeout.Duration())
	assert.Equal(t, "ci-analysis.json", cfg.Artifacts.AnalysisPath)
	assert.Equal(t, "ci-fix.patch", cfg.Artifacts.PatchPath)
	assert.Equal(t, "test-output.log", cfg.Artifacts.TestLogPath)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "sk-test-123")
	t.Setenv("GIT_TRUNK_BRANCH", "develop")
	t.Setenv("PUBLISH_TOKEN", "ghp_test")
	t.Setenv("ANALYSIS_TIMEOUT", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.Analysis.APIKey.Value())
	assert.Equal(t, "develop", cfg.Git.TrunkBranch)
	assert.Equal(t, "ghp_test", cfg.Publish.Token.Value())
	assert.Equal(t, 90*time.Second, cfg.Analysis.Timeout.Duration())
}

func TestLoad_FallbackEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-anthropic", cfg.Analysis.APIKey.Value())
	assert.Equal(t, "ghp_fallback", cfg.Publish.Token.Value())
}

func TestLoad_SpecificKeyWinsOverFallback(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "sk-specific")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-specific", cfg.Analysis.APIKey.Value())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
git:
  trunk_branch: release
  author_name: CI Bot
analysis:
  model: claude-3-haiku-20240307
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Git.TrunkBranch)
	assert.Equal(t, "CI Bot", cfg.Git.AuthorName)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Analysis.Model)
	// Untouched keys keep their defaults.
	assert.Equal(t, "origin", cfg.Git.Remote)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("git:\n  trunk_branch: release\n"), 0o600))

	t.Setenv("GIT_TRUNK_BRANCH", "master")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "master", cfg.Git.TrunkBranch)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Git.TrunkBranch)
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ANALYSIS_API_KEY", "analysis.api_key"},
		{"GIT_TRUNK_BRANCH", "git.trunk_branch"},
		{"GIT_AUTHOR_EMAIL", "git.author_email"},
		{"PUBLISH_TOKEN", "publish.token"},
		{"LOGGING_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envTransform(tt.in))
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 150*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty trunk", func(c *Config) { c.Git.TrunkBranch = "" }},
		{"empty remote", func(c *Config) { c.Git.Remote = "" }},
		{"zero timeout", func(c *Config) { c.Analysis.Timeout = 0 }},
		{"empty analysis path", func(c *Config) { c.Artifacts.AnalysisPath = "" }},
		{"empty patch path", func(c *Config) { c.Artifacts.PatchPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
