package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autofix/internal/analysis"
	"github.com/fyrsmithlabs/autofix/internal/artifact"
)

const instrumentationName = "github.com/fyrsmithlabs/autofix/internal/pipeline"

// Pipeline orchestrates one remediation run.
type Pipeline struct {
	analyzer  analysis.Provider
	workspace Workspace
	artifacts ArtifactStore
	publisher Publisher
	trunk     string
	logger    *zap.Logger

	tracer trace.Tracer
}

// New creates a pipeline.
func New(analyzer analysis.Provider, ws Workspace, artifacts ArtifactStore, publisher Publisher, trunk string, logger *zap.Logger) (*Pipeline, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if ws == nil {
		return nil, errors.New("workspace is required")
	}
	if artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if trunk == "" {
		return nil, errors.New("trunk branch is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		analyzer:  analyzer,
		workspace: ws,
		artifacts: artifacts,
		publisher: publisher,
		trunk:     trunk,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// Run executes one remediation run. The returned error is non-nil only when
// the commit checkpoint, or a stage the commit depends on, fails.
func (p *Pipeline) Run(ctx context.Context) (*RunState, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	state := &RunState{RunID: uuid.New().String()}
	logger := p.logger.With(zap.String("run_id", state.RunID))
	span.SetAttributes(attribute.String("run_id", state.RunID))

	// Diagnostics. Both inputs are best-effort: an absent log and a failed
	// diff degrade the analysis, not the run.
	testLog, err := p.artifacts.ReadTestLog()
	if err != nil {
		logger.Warn("could not read test log, proceeding without it", zap.Error(err))
		testLog = ""
	}
	state.TestLog = testLog

	if err := p.workspace.EnsureIdentity(); err != nil {
		logger.Warn("identity setup failed, commits will use defaults", zap.Error(err))
	}

	diff, err := p.workspace.DiffAgainst(ctx, p.trunk)
	if err != nil {
		logger.Warn("diff capture failed, proceeding with empty diff", zap.Error(err))
		diff = ""
	}
	state.GitDiff = diff

	state.Analysis = p.analyzer.Analyze(ctx, state.TestLog, state.GitDiff)
	logger.Info("analysis obtained",
		zap.String("risk", state.Analysis.RiskAssessment),
		zap.Bool("has_patch", state.Analysis.Patch != ""),
	)

	// Materialization. From here until the commit, failures are fatal:
	// without a branch, artifacts and a commit the run produced nothing.
	short, err := p.workspace.ShortHead()
	if err != nil {
		return state, p.fail(span, fmt.Errorf("resolving HEAD for branch name: %w", err))
	}
	state.BranchName = branchPrefix + short

	if err := p.workspace.Checkout(state.BranchName); err != nil {
		return state, p.fail(span, fmt.Errorf("creating branch %s: %w", state.BranchName, err))
	}
	logger.Info("switched to fix branch", zap.String("branch", state.BranchName))

	paths, err := p.artifacts.Write(&artifact.Record{
		RunID:       state.RunID,
		GeneratedAt: time.Now(),
		TestLog:     state.TestLog,
		GitDiff:     state.GitDiff,
		Analysis:    state.Analysis,
	})
	if err != nil {
		return state, p.fail(span, fmt.Errorf("writing artifacts: %w", err))
	}
	state.ArtifactPaths = paths

	if err := p.workspace.Add(paths...); err != nil {
		return state, p.fail(span, fmt.Errorf("staging artifacts: %w", err))
	}

	commitHash, err := p.workspace.Commit(commitMessage)
	if err != nil {
		return state, p.fail(span, fmt.Errorf("committing analysis: %w", err))
	}
	state.CommitHash = commitHash
	logger.Info("created remediation commit",
		zap.String("commit", commitHash),
		zap.Strings("files", paths),
	)

	// Publishing. The run already succeeded; everything below is a warning
	// at worst.
	if err := p.workspace.Push(ctx, state.BranchName); err != nil {
		logger.Warn("push failed, branch remains local", zap.Error(err))
	}

	remoteURL, err := p.workspace.RemoteURL()
	if err != nil {
		logger.Info("no usable remote, skipping pull request", zap.Error(err))
		return state, nil
	}
	if err := p.publisher.CreatePullRequest(ctx, remoteURL, state.BranchName, state.Analysis); err != nil {
		logger.Warn("pull request creation failed", zap.Error(err))
	}

	return state, nil
}

// fail records the fatal error on the span and returns it.
func (p *Pipeline) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
