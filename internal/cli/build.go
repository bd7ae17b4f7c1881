package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stagehand/internal/driver"
	"github.com/mesh-intelligence/stagehand/internal/ledger"
	"github.com/mesh-intelligence/stagehand/internal/orchestrator"
	"github.com/mesh-intelligence/stagehand/internal/paint"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

type buildFlags struct {
	order       string
	noLedger    bool
	skipCodegen bool
	verify      bool
}

func newBuildCmd() *cobra.Command {
	var bf buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Stage the project, build every package and collect the artifacts",
		Long: `Build runs code generation in the source root, clears the output directory,
copies the source tree into a fresh workspace and builds each package there in
order. The first failing package stops the run. On success every artifact is
copied into the output directory and summarised.

Exit status is 0 on success, 1 for configuration errors and 2 when staging,
a package build or collection fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, bf)
		},
	}
	cmd.Flags().StringVar(&bf.order, "order", "", "build order: topological or declared (default from config)")
	cmd.Flags().BoolVar(&bf.noLedger, "no-ledger", false, "do not record the run in the ledger")
	cmd.Flags().BoolVar(&bf.skipCodegen, "skip-codegen", false, "skip the code generation step")
	cmd.Flags().BoolVar(&bf.verify, "verify", false, "verify the staged workspace against the source tree digest")
	return cmd
}

func runBuild(cmd *cobra.Command, bf buildFlags) error {
	cfg, _, err := loadConfig(bf.order)
	if err != nil {
		return err
	}
	if bf.verify {
		cfg.VerifyStage = true
	}

	opts := orchestrator.Options{
		Invoker:     driver.NewExecInvoker(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		Out:         cmd.OutOrStdout(),
		SkipCodegen: bf.skipCodegen,
	}
	if cfg.Ledger && !bf.noLedger {
		l, err := ledger.Open(cfg.DataDir)
		if err != nil {
			slog.Warn("ledger unavailable", "dir", cfg.DataDir, "error", err)
		} else {
			defer l.Close()
			opts.Recorder = l
		}
	}

	o, err := orchestrator.New(cfg, opts)
	if err != nil {
		return err
	}

	sum, err := o.Run(cmd.Context())
	printOutcome(cmd, sum, err)
	return err
}

// printOutcome writes the one-line run result.
func printOutcome(cmd *cobra.Command, sum *types.RunSummary, err error) {
	w := cmd.OutOrStdout()
	p := paint.For(w)
	elapsed := sum.Run.FinishedAt.Sub(sum.Run.StartedAt).Round(time.Millisecond)

	if err != nil {
		fmt.Fprintf(w, "\n%s after %d of %d package(s) in %s\n",
			p.Sprint(paint.Danger, "FAILED"), len(sum.Packages), len(sum.Order), elapsed)
		return
	}

	fmt.Fprintf(w, "\n%s %d package(s), %d artifact(s) in %s\n",
		p.Sprint(paint.Success, "BUILT"), len(sum.Packages), len(sum.Artifacts), elapsed)
	if sum.ReportFailures > 0 {
		fmt.Fprintf(w, "%s %d artifact(s) could not be read\n", p.Sprint(paint.Warn, "warning:"), sum.ReportFailures)
	}
	if sum.Run.ID != "" {
		fmt.Fprintf(w, "run %s\n", sum.Run.ID)
	}
}
