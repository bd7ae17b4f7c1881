package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stagehand/internal/paint"
	"github.com/mesh-intelligence/stagehand/internal/table"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// planEntry is one package of a printed plan.
type planEntry struct {
	Package    string   `json:"package"`
	SearchPath []string `json:"search_path"`
	Clean      []string `json:"clean,omitempty"`
	Steps      []string `json:"steps"`
	Artifacts  string   `json:"artifacts"`
}

func newPlanCmd() *cobra.Command {
	var order string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the build order and each package's search path without building",
		Long: `Plan validates the dependency table and prints the packages in build order,
with the search path each one will see (relative to the workspace) and the
commands its recipe runs. In declared order, dependencies listed after the
packages that need them are reported as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, order)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "build order: topological or declared (default from config)")
	return cmd
}

func runPlan(cmd *cobra.Command, order string) error {
	cfg, _, err := loadConfig(order)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	t, err := table.New(cfg.Packages, cfg.Defaults)
	if err != nil {
		return err
	}
	pkgs, err := t.Order(cfg.Order)
	if err != nil {
		return err
	}

	entries := make([]planEntry, 0, len(pkgs))
	for _, p := range pkgs {
		entries = append(entries, planFor(t, p))
	}

	w := cmd.OutOrStdout()
	p := paint.For(w)
	if flags.jsonMode {
		return writeJSON(w, entries)
	}

	fmt.Fprintf(w, "%s order, %d package(s)\n", cfg.Order, len(entries))
	if len(cfg.Codegen) > 0 {
		fmt.Fprintf(w, "codegen: %s\n", strings.Join(cfg.Codegen, " "))
	}
	for i, e := range entries {
		fmt.Fprintf(w, "\n%2d. %s", i+1, p.Sprint(paint.Bold, e.Package))
		if e.Artifacts == types.ArtifactsOptional {
			fmt.Fprint(w, " (artifacts optional)")
		}
		fmt.Fprintln(w)
		if len(e.SearchPath) > 0 {
			fmt.Fprintf(w, "    %s=%s\n", cfg.SearchPathVar, strings.Join(e.SearchPath, string(os.PathListSeparator)))
		}
		if len(e.Clean) > 0 {
			fmt.Fprintf(w, "    clean: %s\n", strings.Join(e.Clean, " "))
		}
		for _, s := range e.Steps {
			fmt.Fprintf(w, "    $ %s\n", s)
		}
	}

	if cfg.Order == types.OrderDeclared {
		for _, v := range t.Violations() {
			fmt.Fprintf(w, "%s %s\n", p.Sprint(paint.Warn, "warning:"), v)
		}
	}
	return nil
}

// planFor describes p with its search path relative to the workspace root.
func planFor(t *table.Table, p types.Package) planEntry {
	e := planEntry{
		Package:    p.Path,
		SearchPath: t.SearchPath(p.Path, "."),
		Clean:      p.Clean,
		Artifacts:  p.Artifacts,
	}
	if e.SearchPath == nil {
		e.SearchPath = []string{}
	}
	for _, s := range p.Pre {
		e.Steps = append(e.Steps, s.String())
	}
	for range p.Repeat {
		e.Steps = append(e.Steps, p.Build.String())
	}
	for _, s := range p.Post {
		e.Steps = append(e.Steps, s.String())
	}
	return e
}
