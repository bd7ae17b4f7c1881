// Package ledger records the history of orchestrator runs in an embedded
// SQLite database: one row per run, one per package outcome and one per
// collected artifact.
package ledger

// Schema DDL for all tables.
const (
	createRuns = `CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    source_digest TEXT,
    workspace TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT
);`

	createPackageResults = `CREATE TABLE IF NOT EXISTS package_results (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    package TEXT NOT NULL,
    state TEXT NOT NULL,
    search_path TEXT NOT NULL,
    artifact_count INTEGER NOT NULL,
    exit_code INTEGER NOT NULL,
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);`

	createArtifacts = `CREATE TABLE IF NOT EXISTS artifacts (
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    package TEXT,
    source TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    digest TEXT NOT NULL,
    PRIMARY KEY (run_id, name),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);`
)

// Index DDL for common queries.
const (
	idxRunsStarted           = `CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`
	idxPackageResultsPackage = `CREATE INDEX IF NOT EXISTS idx_package_results_package ON package_results(package);`
	idxArtifactsDigest       = `CREATE INDEX IF NOT EXISTS idx_artifacts_digest ON artifacts(digest);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createRuns,
	createPackageResults,
	createArtifacts,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxRunsStarted,
	idxPackageResultsPackage,
	idxArtifactsDigest,
}
