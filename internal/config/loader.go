// Package config provides configuration loading for autofix.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envSections are the environment variable prefixes mapped into config keys.
var envSections = []string{"ANALYSIS_", "GIT_", "PUBLISH_", "ARTIFACTS_", "LOGGING_"}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ANALYSIS_API_KEY, GIT_TRUNK_BRANCH, ...)
//  2. YAML config file (if configPath is non-empty and the file exists)
//  3. Hardcoded defaults
//
// Environment variables use underscore separator and are uppercased:
//
//	ANALYSIS_API_KEY  -> analysis.api_key
//	GIT_TRUNK_BRANCH  -> git.trunk_branch
//	PUBLISH_TOKEN     -> publish.token
//
// For CI convenience the conventional ANTHROPIC_API_KEY and GITHUB_TOKEN
// variables are honored when the autofix-specific ones are unset, as are
// GIT_AUTHOR_NAME and GIT_AUTHOR_EMAIL for commit identity.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readConfigFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyFallbackEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// readConfigFile opens and reads the config file with a size cap, validating
// through the open file descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envTransform maps environment variable names to config keys.
// Variables outside the known sections are dropped.
func envTransform(s string) string {
	for _, prefix := range envSections {
		if strings.HasPrefix(s, prefix) {
			section := strings.ToLower(strings.TrimSuffix(prefix, "_"))
			return section + "." + strings.ToLower(strings.TrimPrefix(s, prefix))
		}
	}
	return ""
}

// applyFallbackEnv fills credentials and identity from the conventional CI
// environment variables when the autofix-specific keys are unset.
func applyFallbackEnv(cfg *Config) {
	if !cfg.Analysis.APIKey.IsSet() {
		cfg.Analysis.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if !cfg.Publish.Token.IsSet() {
		cfg.Publish.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}
}
