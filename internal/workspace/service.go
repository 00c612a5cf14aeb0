package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autofix/internal/config"
)

// Default commit identity when none is configured. Matches the noreply
// convention used by CI bots.
const (
	defaultAuthorName  = "autofix"
	defaultAuthorEmail = "autofix@users.noreply.github.com"
)

// shortHashLen is the abbreviated commit hash length used in branch names.
const shortHashLen = 7

// Service performs git operations on a single checkout.
type Service struct {
	repo   *git.Repository
	config config.GitConfig
	logger *zap.Logger
}

// Open opens the repository at path.
func Open(path string, cfg config.GitConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	return &Service{
		repo:   repo,
		config: cfg,
		logger: logger,
	}, nil
}

// EnsureIdentity sets user.name and user.email in the repository config when
// they are unset. Best-effort: the pipeline swallows a failure here because
// commits fall back to the default identity.
func (s *Service) EnsureIdentity() error {
	cfg, err := s.repo.Config()
	if err != nil {
		return fmt.Errorf("reading repo config: %w", err)
	}

	changed := false
	if cfg.User.Name == "" {
		cfg.User.Name = s.authorName()
		changed = true
	}
	if cfg.User.Email == "" {
		cfg.User.Email = s.authorEmail()
		changed = true
	}
	if !changed {
		return nil
	}

	if err := s.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("writing repo config: %w", err)
	}
	return nil
}

// ShortHead returns the abbreviated hash of the current HEAD commit.
func (s *Service) ShortHead() (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String()[:shortHashLen], nil
}

// DiffAgainst returns the patch text between the trunk branch's tree and the
// HEAD tree. The caller treats a failure as an empty diff.
func (s *Service) DiffAgainst(ctx context.Context, trunk string) (string, error) {
	trunkHash, err := s.resolveBranch(trunk)
	if err != nil {
		return "", err
	}

	trunkCommit, err := s.repo.CommitObject(trunkHash)
	if err != nil {
		return "", fmt.Errorf("loading trunk commit: %w", err)
	}
	trunkTree, err := trunkCommit.Tree()
	if err != nil {
		return "", fmt.Errorf("loading trunk tree: %w", err)
	}

	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	headCommit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("loading HEAD commit: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return "", fmt.Errorf("loading HEAD tree: %w", err)
	}

	changes, err := object.DiffTreeWithOptions(ctx, trunkTree, headTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", fmt.Errorf("diffing trees: %w", err)
	}

	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("rendering patch: %w", err)
	}

	return patch.String(), nil
}

// resolveBranch resolves a branch name to a commit hash, trying the local
// branch first and the configured remote's tracking ref second.
func (s *Service) resolveBranch(branch string) (plumbing.Hash, error) {
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err == nil {
		return ref.Hash(), nil
	}

	remoteRef, remoteErr := s.repo.Reference(
		plumbing.NewRemoteReferenceName(s.config.Remote, branch), true)
	if remoteErr == nil {
		return remoteRef.Hash(), nil
	}

	return plumbing.ZeroHash, fmt.Errorf("resolving branch %s: %w", branch, err)
}

// Checkout switches to branch, creating it at HEAD when it does not exist.
// Local modifications are kept: the working tree holds the failing state the
// pipeline is documenting.
func (s *Service) Checkout(branch string) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	opts := &git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
		Keep:   true,
	}
	err = wt.Checkout(opts)
	if err == nil {
		return nil
	}

	// Branch already exists: switch instead of failing.
	opts.Create = false
	if switchErr := wt.Checkout(opts); switchErr != nil {
		return fmt.Errorf("checking out branch %s: %w", branch, errors.Join(err, switchErr))
	}
	return nil
}

// Add stages the given paths.
func (s *Service) Add(paths ...string) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	for _, path := range paths {
		if _, err := wt.Add(path); err != nil {
			return fmt.Errorf("staging %s: %w", path, err)
		}
	}
	return nil
}

// Commit creates a commit with the staged changes.
func (s *Service) Commit(message string) (string, error) {
	wt, err := s.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.authorName(),
			Email: s.authorEmail(),
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// Push pushes branch to the configured remote and records the upstream
// tracking config. Fallible by design; the pipeline logs and continues.
func (s *Service) Push(ctx context.Context, branch string) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err := s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: s.config.Remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}

	// Upstream tracking, so a later `git push` on the branch just works.
	trackErr := s.repo.CreateBranch(&gitconfig.Branch{
		Name:   branch,
		Remote: s.config.Remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	})
	if trackErr != nil && !errors.Is(trackErr, git.ErrBranchExists) {
		s.logger.Debug("could not record upstream tracking", zap.Error(trackErr))
	}

	return nil
}

// RemoteURL returns the first URL of the configured remote.
func (s *Service) RemoteURL() (string, error) {
	remote, err := s.repo.Remote(s.config.Remote)
	if err != nil {
		return "", fmt.Errorf("resolving remote %s: %w", s.config.Remote, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", s.config.Remote)
	}
	return urls[0], nil
}

func (s *Service) authorName() string {
	if s.config.AuthorName != "" {
		return s.config.AuthorName
	}
	return defaultAuthorName
}

func (s *Service) authorEmail() string {
	if s.config.AuthorEmail != "" {
		return s.config.AuthorEmail
	}
	return defaultAuthorEmail
}
