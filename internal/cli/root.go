// Package cli implements the stagehand command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stagehand/internal/config"
	"github.com/mesh-intelligence/stagehand/internal/paint"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1 // configuration or usage error
	exitRunError  = 2 // setup, build or collection failure
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configFile string
	sourceRoot string
	workspace  string
	outputDir  string
	dataDir    string
	verbose    bool
	quiet      bool
	jsonMode   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "stagehand" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "Build a multi-package project into one directory of packages",
		Long: "Stagehand copies a project into a disposable workspace, builds each of its\n" +
			"packages in dependency order with an isolated search path, and collects the\n" +
			"resulting distributable packages into one output directory.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), flags.verbose, flags.quiet))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default: stagehand.yaml in the source root or config directory)")
	pf.StringVarP(&flags.sourceRoot, "source", "s", "", "project source root (default: current directory)")
	pf.StringVar(&flags.workspace, "workspace", "", "build workspace (default: $XDG_CACHE_HOME/stagehand/workspace)")
	pf.StringVarP(&flags.outputDir, "output", "o", "", "artifact output directory (default: build/debs in the source root)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "ledger directory (default: $XDG_DATA_HOME/stagehand)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log debug detail")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "log warnings and errors only")
	pf.BoolVar(&flags.jsonMode, "json", false, "output in JSON format where supported")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "%s %v\n", paint.For(root.ErrOrStderr()).Sprint(paint.Danger, "error:"), err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrSetup), errors.Is(err, types.ErrBuildFailed), errors.Is(err, types.ErrCollect):
		return exitRunError
	default:
		return exitUserError
	}
}

// loadConfig resolves the configuration from the global flags.
func loadConfig(order string) (types.Config, string, error) {
	cfg, used, err := config.Load(config.Overrides{
		ConfigFile: flags.configFile,
		SourceRoot: flags.sourceRoot,
		Workspace:  flags.workspace,
		OutputDir:  flags.outputDir,
		DataDir:    flags.dataDir,
		Order:      order,
	})
	if err != nil {
		return types.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	if used != "" {
		slog.Debug("config loaded", "file", used)
	}
	return cfg, used, nil
}

// newLogger returns a text logger writing to w.
func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
