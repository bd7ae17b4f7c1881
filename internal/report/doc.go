// Package report prints a human-readable summary of the artifacts in an
// output directory.
//
// Debian packages are read natively: the ar archive is walked to its control
// tarball, which may be uncompressed or compressed with gzip, xz or zstd, and
// the fields of the control stanza are extracted. Other formats are reported
// by name, size and digest only.
//
// Reporting is observational. A failure to read one artifact is printed in
// its place and counted; it never stops the report or changes a run's
// outcome.
package report
