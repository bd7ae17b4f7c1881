package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// Invocation is one run of a build procedure. It carries everything the
// procedure's environment needs; nothing is taken from shared state.
type Invocation struct {
	Package       string            // Package path, for logging.
	Step          string            // Recipe step label, for logging.
	Dir           string            // Working directory.
	Args          []string          // Command and arguments.
	Env           map[string]string // Variables set on top of the inherited environment.
	SearchPathVar string            // Variable carrying the search path.
	SearchPath    []string          // Absolute directories, in order.
}

// Invoker runs build procedures. Implementations must block until the
// procedure exits and return a non-nil error if it failed.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// ErrEmptyCommand is returned for an invocation without arguments.
var ErrEmptyCommand = errors.New("empty command")

// Environ returns base with inv's variables applied, sorted by name.
//
// The search-path variable is always replaced: it is set to the joined
// search path when one is configured and removed otherwise, so an inherited
// value never reaches the procedure.
func (inv Invocation) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(inv.Env)+1)
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range inv.Env {
		merged[k] = v
	}

	if inv.SearchPathVar != "" {
		delete(merged, inv.SearchPathVar)
		if len(inv.SearchPath) > 0 {
			merged[inv.SearchPathVar] = strings.Join(inv.SearchPath, string(os.PathListSeparator))
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// ExecInvoker runs invocations as child processes.
type ExecInvoker struct {
	Stdout io.Writer
	Stderr io.Writer

	// BaseEnv returns the inherited environment. Defaults to os.Environ.
	BaseEnv func() []string
}

// NewExecInvoker returns an invoker streaming procedure output to stdout and
// stderr.
func NewExecInvoker(stdout, stderr io.Writer) *ExecInvoker {
	return &ExecInvoker{Stdout: stdout, Stderr: stderr, BaseEnv: os.Environ}
}

// Invoke starts inv.Args in inv.Dir and waits for it to exit. A bare command
// name is looked up in the PATH of the invocation's environment, so a step
// overriding PATH selects the binary. A relative command containing a path
// separator is resolved against inv.Dir. Cancelling ctx kills the process.
func (e *ExecInvoker) Invoke(ctx context.Context, inv Invocation) error {
	if len(inv.Args) == 0 {
		return ErrEmptyCommand
	}

	base := os.Environ
	if e.BaseEnv != nil {
		base = e.BaseEnv
	}
	env := inv.Environ(base())

	name := inv.Args[0]
	if p, ok := lookPath(name, env); ok {
		name = p
	}
	cmd := exec.CommandContext(ctx, name, inv.Args[1:]...)
	cmd.Args[0] = inv.Args[0]
	cmd.Dir = inv.Dir
	cmd.Env = env
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd.Run()
}

// lookPath finds the executable name in the absolute directories of env's
// PATH. It reports false for names containing a separator and when nothing
// matches; exec then falls back to its own lookup.
func lookPath(name string, env []string) (string, bool) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return "", false
	}
	var pathList string
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, "PATH="); ok {
			pathList = v
		}
	}
	for _, dir := range filepath.SplitList(pathList) {
		if !filepath.IsAbs(dir) {
			continue
		}
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return p, true
		}
	}
	return "", false
}
