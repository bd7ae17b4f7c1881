package types

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one invocation of the orchestrator.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	SourceDigest digest.Digest
	Workspace    string
	OutputDir    string
	Error        string
}

// PackageResult is the outcome of one package within a run.
type PackageResult struct {
	Package    string
	State      PackageState
	SearchPath []string
	Artifacts  []string // Artifact paths found under the package directory.
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// RunSummary is returned by a completed orchestrator run.
type RunSummary struct {
	Run            Run
	Order          []string
	Packages       []PackageResult
	Artifacts      []Artifact
	ReportFailures int
}
