// Package publishrun drives one publish of the working tree to DPC.
//
// Stages:
//   - init -> authenticated -> resources_collected -> published | noop
//   - published -> executed
//
// Any fatal condition ends the run in failed; the returned *StageError names
// the last stage that completed. Nothing already published is rolled back.
//
// A run with no files and no connectors stops at noop without calling the
// artifact endpoint; callers treat that as success. Archive and ledger sinks
// are best-effort: their failures are logged and never change the outcome.
package publishrun
