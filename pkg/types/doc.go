// Package types defines the packages, recipes, artifacts, run records and
// standard errors shared by the stagehand build orchestrator.
//
// A [Package] is immutable configuration: a relative path inside the project,
// the relative paths it depends on at build time, and a [Recipe] describing
// how its own build procedure is invoked. Everything the orchestrator does at
// runtime (staging, ordering, invoking, collecting) works from these values.
package types
