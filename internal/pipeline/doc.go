// Package pipeline sequences a single CI-failure remediation run.
//
// The orchestrator gathers diagnostics, obtains an analysis, materializes it
// as a branch and commit, and hands off to publishing. Each stage carries its
// own failure policy:
//
//	test log read      best-effort: missing or unreadable log means empty log
//	identity setup     best-effort: commits fall back to a default identity
//	diff capture       best-effort: failure means empty diff
//	analysis           never fails: the provider degrades internally
//	branch + artifacts fatal: without them there is nothing to commit
//	staging + commit   fatal: this is the run's success criterion
//	push               best-effort: warning only
//	pull request       best-effort: warning only
//
// Run returns an error only when the commit checkpoint (or a stage it
// depends on) fails. Everything else degrades the run's output quality, not
// its outcome.
package pipeline
