package types

import "github.com/opencontainers/go-digest"

// Artifact is one distributable file produced by a package build.
type Artifact struct {
	Name    string        // File name, unique within the output directory.
	Package string        // Owning package path; empty if produced outside every package.
	Source  string        // Absolute path under the workspace.
	Path    string        // Absolute path in the output directory.
	Size    int64         // Size in bytes.
	Digest  digest.Digest // Content digest.
}

// Metadata is the descriptive information embedded in an artifact.
type Metadata struct {
	Name         string
	Version      string
	Architecture string
	Maintainer   string
	Description  string            // Synopsis line only.
	Fields       map[string]string // All fields, keyed by canonical name.
}
