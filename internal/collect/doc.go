// Package collect gathers build artifacts from a workspace into one flat
// output directory.
//
// The output directory always reflects the latest run only: [Clear] removes
// every file of the artifact format before builds start, and [Collect] copies
// each artifact found anywhere under the workspace into it by file name.
// Artifacts are copied in package build order, so when two packages produce
// files with the same name the later package's file wins.
package collect
