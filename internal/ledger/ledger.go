package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// FileName is the database file created in the data directory.
const FileName = "ledger.db"

// Errors returned by the ledger.
var (
	ErrClosed      = errors.New("ledger closed")
	ErrRunNotFound = errors.New("run not found")
)

// timeFormat is fixed width so stored times sort as text. Times are stored
// in UTC and parsed with time.RFC3339Nano.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is a run history backed by SQLite. It is safe for concurrent use.
type Ledger struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the ledger database in dataDir.
func Open(dataDir string) (*Ledger, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dataDir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	for _, ddl := range slices.Concat(schemaDDL, indexDDL) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &Ledger{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database. Later calls return ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// BeginRun records a new running run and returns it with a generated UUID v7
// identifier and start time.
func (l *Ledger) BeginRun(workspace, outputDir string, source digest.Digest) (types.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return types.Run{}, ErrClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.Run{}, fmt.Errorf("generating UUID v7: %w", err)
	}
	run := types.Run{
		ID:           id.String(),
		StartedAt:    l.now().UTC(),
		Status:       types.RunRunning,
		SourceDigest: source,
		Workspace:    workspace,
		OutputDir:    outputDir,
	}

	_, err = l.db.Exec(
		`INSERT INTO runs (run_id, status, source_digest, workspace, output_dir, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, nullString(run.SourceDigest.String()), run.Workspace, run.OutputDir,
		run.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return types.Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// RecordPackage appends a package outcome to run id.
func (l *Ledger) RecordPackage(id string, res types.PackageResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}

	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, err := l.db.Exec(
		`INSERT INTO package_results
		 (run_id, seq, package, state, search_path, artifact_count, exit_code, error, started_at, finished_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM package_results WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, id, res.Package, string(res.State),
		strings.Join(res.SearchPath, string(os.PathListSeparator)),
		len(res.Artifacts), res.ExitCode, nullString(errText),
		res.StartedAt.UTC().Format(timeFormat), res.FinishedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting package result %s: %w", res.Package, err)
	}
	return nil
}

// RecordArtifacts stores the collected artifacts of run id in one
// transaction.
func (l *Ledger) RecordArtifacts(id string, artifacts []types.Artifact) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO artifacts (run_id, name, package, source, path, size, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range artifacts {
		if _, err := stmt.Exec(id, a.Name, nullString(a.Package), a.Source, a.Path, a.Size, a.Digest.String()); err != nil {
			return fmt.Errorf("inserting artifact %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// RecordSource sets the source tree digest of run id.
func (l *Ledger) RecordSource(id string, source digest.Digest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}
	res, err := l.db.Exec(`UPDATE runs SET source_digest = ? WHERE run_id = ?`, nullString(source.String()), id)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// FinishRun marks run id finished with status and an optional error.
func (l *Ledger) FinishRun(id, status string, runErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}

	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}
	res, err := l.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		status, nullString(errText), l.now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `run_id, status, source_digest, workspace, output_dir, error, started_at, finished_at`

// Runs returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (l *Ledger) Runs(limit int) ([]types.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := hydrateRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns the run with the given id. A unique id prefix is accepted.
func (l *Ledger) Run(id string) (types.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return types.Run{}, ErrClosed
	}

	rows, err := l.db.Query(
		`SELECT `+runColumns+` FROM runs WHERE run_id = ? OR run_id LIKE ? ORDER BY run_id LIMIT 2`,
		id, stripLike(id)+"%",
	)
	if err != nil {
		return types.Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	defer rows.Close()

	var found []types.Run
	for rows.Next() {
		run, err := hydrateRun(rows)
		if err != nil {
			return types.Run{}, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return types.Run{}, err
	}
	if len(found) != 1 {
		return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return found[0], nil
}

// PackageResults returns the package outcomes of run id in build order.
// Errors are restored as plain messages.
func (l *Ledger) PackageResults(id string) ([]types.PackageResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrClosed
	}

	rows, err := l.db.Query(
		`SELECT package, state, search_path, artifact_count, exit_code, error, started_at, finished_at
		 FROM package_results WHERE run_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying package results: %w", err)
	}
	defer rows.Close()

	var results []types.PackageResult
	for rows.Next() {
		var (
			res                 types.PackageResult
			state, searchPath   string
			count               int
			errText             sql.NullString
			startedAt, finished string
		)
		if err := rows.Scan(&res.Package, &state, &searchPath, &count, &res.ExitCode, &errText, &startedAt, &finished); err != nil {
			return nil, err
		}
		res.State = types.PackageState(state)
		if searchPath != "" {
			res.SearchPath = strings.Split(searchPath, string(os.PathListSeparator))
		}
		res.Artifacts = make([]string, count)
		if errText.Valid {
			res.Err = errors.New(errText.String)
		}
		if res.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if res.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Artifacts returns the artifacts collected by run id, sorted by name.
func (l *Ledger) Artifacts(id string) ([]types.Artifact, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrClosed
	}

	rows, err := l.db.Query(
		`SELECT name, package, source, path, size, digest FROM artifacts WHERE run_id = ? ORDER BY name`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []types.Artifact
	for rows.Next() {
		var (
			a   types.Artifact
			pkg sql.NullString
			dg  string
		)
		if err := rows.Scan(&a.Name, &pkg, &a.Source, &a.Path, &a.Size, &dg); err != nil {
			return nil, err
		}
		a.Package = pkg.String
		a.Digest = digest.Digest(dg)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// hydrateRun converts a row selected with runColumns.
func hydrateRun(rows *sql.Rows) (types.Run, error) {
	var (
		run                   types.Run
		source, errText, done sql.NullString
		started               string
	)
	if err := rows.Scan(&run.ID, &run.Status, &source, &run.Workspace, &run.OutputDir, &errText, &started, &done); err != nil {
		return types.Run{}, err
	}
	run.SourceDigest = digest.Digest(source.String)
	run.Error = errText.String

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return types.Run{}, err
	}
	if done.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, done.String); err != nil {
			return types.Run{}, err
		}
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// stripLike removes LIKE wildcards, which never occur in run ids.
func stripLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
