package pipeline

import (
	"context"

	"github.com/fyrsmithlabs/autofix/internal/analysis"
	"github.com/fyrsmithlabs/autofix/internal/artifact"
)

// branchPrefix is prepended to the short HEAD hash to form the fix branch.
const branchPrefix = "auto-fix/"

// commitMessage is the fixed message for remediation commits.
const commitMessage = "chore: add automated CI failure analysis"

// Workspace is the version-control capability the pipeline needs.
// Implemented by workspace.Service.
type Workspace interface {
	EnsureIdentity() error
	ShortHead() (string, error)
	DiffAgainst(ctx context.Context, trunk string) (string, error)
	Checkout(branch string) error
	Add(paths ...string) error
	Commit(message string) (string, error)
	Push(ctx context.Context, branch string) error
	RemoteURL() (string, error)
}

// ArtifactStore reads the prior test log and persists run artifacts.
// Implemented by artifact.Writer.
type ArtifactStore interface {
	ReadTestLog() (string, error)
	Write(record *artifact.Record) ([]string, error)
}

// Publisher opens a pull request for a completed run.
// Implemented by publish.Service.
type Publisher interface {
	CreatePullRequest(ctx context.Context, remoteURL, branch string, result *analysis.Result) error
}

// RunState is the per-run context owned by the orchestrator. It is built up
// as stages execute and discarded when the run ends.
type RunState struct {
	RunID      string
	TestLog    string
	GitDiff    string
	BranchName string
	Analysis   *analysis.Result
	CommitHash string
	// ArtifactPaths are the relative paths written and staged, analysis
	// record first, patch file second when present.
	ArtifactPaths []string
}
