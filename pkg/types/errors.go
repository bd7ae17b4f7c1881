package types

import (
	"errors"
	"fmt"
)

// Error classes. Every fatal error returned by the orchestrator wraps exactly
// one of ErrSetup, ErrBuildFailed or ErrCollect.
var (
	ErrSetup       = errors.New("setup failed")
	ErrBuildFailed = errors.New("package build failed")
	ErrCollect     = errors.New("artifact collection failed")
)

// Setup errors.
var (
	ErrCodegen               = errors.New("code generation failed")
	ErrWorkspaceInsideSource = errors.New("workspace overlaps source tree")
	ErrStageMismatch         = errors.New("workspace does not match source tree")
)

// Table errors.
var (
	ErrEmptyPackagePath    = errors.New("package path must not be empty")
	ErrInvalidPackagePath  = errors.New("package path must be relative and inside the project")
	ErrDuplicatePackage    = errors.New("duplicate package")
	ErrUnknownDependency   = errors.New("dependency is not owned by any package")
	ErrDependencyCycle     = errors.New("dependency cycle")
	ErrUnknownOrder        = errors.New("unknown build order mode")
	ErrUnknownExpectation  = errors.New("unknown artifact expectation")
	ErrEmptyBuildCommand   = errors.New("build command must not be empty")
	ErrInvalidRepeat       = errors.New("repeat must not be negative")
	ErrNoPackages          = errors.New("no packages configured")
	ErrInvalidArtifactGlob = errors.New("invalid artifact pattern")
)

// Package build errors.
var (
	ErrPackageMissing    = errors.New("package directory missing from workspace")
	ErrNoArtifacts       = errors.New("package produced no artifacts")
	ErrInvalidTransition = errors.New("invalid package state transition")
)

// Config validation errors.
var (
	ErrSourceRootEmpty    = errors.New("source root must not be empty")
	ErrWorkspaceEmpty     = errors.New("workspace must not be empty")
	ErrOutputDirEmpty     = errors.New("output directory must not be empty")
	ErrSearchPathVarEmpty = errors.New("search path variable must not be empty")
)

// BuildError reports the failure of one step of one package's recipe.
// It matches ErrBuildFailed with errors.Is as well as the underlying cause.
type BuildError struct {
	Package  string // Package path.
	Step     string // Recipe step label, e.g. "pre[0]" or "build#2".
	ExitCode int    // Exit status of the build procedure, 0 if it never ran.
	Err      error  // Underlying cause.
}

func (e *BuildError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("package %s: %s: exit status %d: %v", e.Package, e.Step, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("package %s: %s: %v", e.Package, e.Step, e.Err)
}

func (e *BuildError) Unwrap() []error {
	return []error{ErrBuildFailed, e.Err}
}
