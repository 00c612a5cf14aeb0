// Package analysis produces a structured root-cause analysis for a failed
// test run.
//
// The provider sends a single bounded request to the Anthropic Messages API
// and degrades instead of failing: when no API key is configured it returns a
// fixed heuristic result, and when the remote call fails or returns an
// unparseable body it returns a fallback result describing what went wrong.
// Analyze never returns an error to its caller.
//
// # Decision policy
//
// Checked in order:
//  1. No API key          -> heuristic result, risk "Low", no network call.
//  2. Transport/deadline  -> fallback embedding the error, risk "Unknown".
//  3. Unparseable content -> fallback explaining the parse failure, risk "Medium".
//  4. Parsed result       -> returned as-is.
//
// A parsed object with an empty RootCauseExplanation is treated as
// unparseable rather than passed through.
//
// The remote call is bounded by a hard deadline (default 4 minutes, under the
// usual 5 minute CI step timeout) and is attempted exactly once. There are no
// retries; a remediation run that misses its window is worthless.
package analysis
