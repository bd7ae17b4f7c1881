// Package driver runs each package's build recipe inside the staged
// workspace, strictly one package at a time and in the order it is given.
//
// For every package the driver resolves the search-path configuration from
// the dependency table and hands it to the [Invoker] as part of an explicit
// [Invocation]. The orchestrator's own process environment is never
// modified, so one package's configuration cannot leak into the next.
//
// The first failing step aborts the run: the failing package ends in the
// failed state, later packages are never attempted, and the returned error
// is a *types.BuildError.
//
// Example usage:
//
//	d := driver.New(tbl, driver.NewExecInvoker(os.Stderr, os.Stderr), driver.Options{
//	    Pattern:       "**/*.deb",
//	    SearchPathVar: "PYTHONPATH",
//	})
//	results, err := d.Run(ctx, workspace, order)
package driver
