// Package workspace wraps git operations for the remediation pipeline.
//
// Every operation is independent; the caller decides which failures are
// fatal. By the pipeline's policy only staging and committing are, which is
// why DiffAgainst and EnsureIdentity are documented as best-effort.
package workspace
