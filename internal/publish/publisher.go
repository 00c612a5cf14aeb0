// Package publish opens pull requests summarizing a remediation run.
//
// Publishing is optional by contract: a missing token or an unparseable
// remote URL skips pull request creation, and API failures are surfaced as
// errors for the caller to log and discard. Nothing in this package can fail
// the pipeline.
package publish

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/autofix/internal/analysis"
	"github.com/fyrsmithlabs/autofix/internal/config"
)

// remoteURLPattern matches the GitHub remote URL forms git@github.com:o/r,
// ssh://git@github.com/o/r and https://github.com/o/r, with an optional
// .git suffix.
var remoteURLPattern = regexp.MustCompile(`^(?:git@github\.com:|ssh://git@github\.com/|https://github\.com/)([^/]+)/(.+?)(?:\.git)?/?$`)

// prTitle is the fixed title for remediation pull requests.
const prTitle = "Automated CI failure analysis"

// Service creates pull requests on the repository host.
type Service struct {
	token  config.Secret
	trunk  string
	logger *zap.Logger

	// client overrides the token-derived GitHub client. Used by tests.
	client *github.Client
}

// NewService creates a publisher. trunk is the pull request base branch.
func NewService(cfg config.PublishConfig, trunk string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		token:  cfg.Token,
		trunk:  trunk,
		logger: logger,
	}
}

// CreatePullRequest opens a pull request from branch into the trunk branch.
//
// Skipped (nil error, logged) when no token is configured or the remote URL
// is not in owner/repository form. Returns an error only when the host API
// rejects the request; the caller logs it as a warning.
func (s *Service) CreatePullRequest(ctx context.Context, remoteURL, branch string, result *analysis.Result) error {
	if !s.token.IsSet() {
		s.logger.Info("no publishing token configured, skipping pull request")
		return nil
	}

	owner, repo, ok := ParseOwnerRepo(remoteURL)
	if !ok {
		s.logger.Info("remote URL not recognized, skipping pull request",
			zap.String("remote_url", remoteURL))
		return nil
	}

	client := s.client
	if client == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.token.Value()})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}

	pr, _, err := client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(prTitle),
		Head:  github.String(branch),
		Base:  github.String(s.trunk),
		Body:  github.String(BuildBody(result)),
	})
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}

	s.logger.Info("opened pull request",
		zap.String("url", pr.GetHTMLURL()),
		zap.Int("number", pr.GetNumber()),
	)
	return nil
}

// ParseOwnerRepo extracts owner and repository from a GitHub remote URL.
func ParseOwnerRepo(remoteURL string) (owner, repo string, ok bool) {
	m := remoteURLPattern.FindStringSubmatch(remoteURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// BuildBody renders the pull request body from the analysis result.
func BuildBody(result *analysis.Result) string {
	patch := result.Patch
	if patch == "" {
		patch = "No patch was proposed."
	}
	return fmt.Sprintf(`## Root Cause

%s

## Proposed Patch

%s

## Test Suggestions

%s

## Risk Assessment

%s
`, result.RootCauseExplanation, patch, result.TestSuggestions, result.RiskAssessment)
}
