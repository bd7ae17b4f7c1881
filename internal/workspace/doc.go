// Package workspace stages a disposable copy of a source tree for one build
// run and computes content digests of directory trees.
//
// A staged workspace is an exact recursive copy: file modes are preserved and
// symbolic links are recreated rather than followed, so build procedures that
// depend on executable scripts or relative links behave as they would in the
// source tree. Any pre-existing workspace is removed first; a copy that fails
// part-way is removed again and reported, never handed to a build.
package workspace
