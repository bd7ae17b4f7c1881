// Package orchestrator runs one complete build: code generation, staging,
// the sequential package builds, artifact collection, the report and the
// ledger entry.
//
// Every fatal error returned by [Orchestrator.Run] wraps exactly one of
// types.ErrSetup, types.ErrBuildFailed or types.ErrCollect. Reporting and
// ledger failures are logged and never change the outcome.
package orchestrator
